package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/job"
	"github.com/JonMunkholm/salesrecon/internal/logging"
	"github.com/JonMunkholm/salesrecon/internal/web/templates"
)

// ErrorResponse is the JSON body of every failed API call. Fields lists the
// offending request fields for REQ002.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Action  string                 `json:"action,omitempty"`
	Code    string                 `json:"code"`
	Fields  []core.ValidationError `json:"fields,omitempty"`
}

// retryAfter is sent with 503 responses when no run slot is free.
const retryAfter = "5"

func statusFor(err error) int {
	var reqErr *job.ValidationError
	switch {
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case strings.Contains(err.Error(), "file too large"):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	}
	for _, target := range []error{
		job.ErrInvalidRequest, ErrNoFile,
		core.ErrNoPrimary, core.ErrEmptyFile, core.ErrInvalidCSV,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err with the request's correlation ids and answers with
// its mapped user message. Known client errors log at warn, anything that
// fell through to ERR000 at error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfter)
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		resp := ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
		var reqErr *job.ValidationError
		if errors.As(err, &reqErr) {
			resp.Fields = reqErr.Fields
		}
		writeJSONStatus(w, r, status, resp)
	default:
		http.Error(w, core.FormatUserError(err), status)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON is true for /api routes and for clients that send or accept JSON.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
