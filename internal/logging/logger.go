// Package logging configures log/slog for the server and the CLI and builds
// per-request loggers carrying the chi request id, the pipeline run id and
// the client address.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

// Setup installs a stdout logger as the slog default.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. Format "json" selects the JSON handler,
// anything else the text handler. Unknown levels fall back to info.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

// FromContext returns the default logger with whatever correlation ids ctx
// carries.
//
//	logging.FromContext(r.Context()).Warn("run rejected", "code", info.Code)
func FromContext(ctx context.Context) *slog.Logger {
	var attrs []any
	for _, kv := range [...]struct{ key, val string }{
		{"request_id", middleware.GetReqID(ctx)},
		{"run_id", core.RunIDFromContext(ctx)},
		{"ip", core.IPAddressFromContext(ctx)},
	} {
		if kv.val != "" {
			attrs = append(attrs, kv.key, kv.val)
		}
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
