// Package config loads salesrecon settings from environment variables. Every
// field declares its variable and default in struct tags; Load fills them in
// and rejects an invalid combination before the server or CLI starts.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

// Config is the full set of settings shared by cmd/server and cmd/reconcile.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	// Listener timeouts handed to http.Server.
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful drain of in-flight runs.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is applied per request by the router middleware.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum size of one multipart request in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxMemory is how much of a multipart body is buffered in memory (default: 32MB)
	MaxMemory int64 `env:"UPLOAD_MAX_MEMORY" default:"33554432"`
}

// PipelineConfig holds reconciliation settings.
type PipelineConfig struct {
	// Designated field names the filters, rules and reports read.
	RegionField   string `env:"PIPELINE_REGION_FIELD" default:"State"`
	DealerField   string `env:"PIPELINE_DEALER_FIELD" default:"Dealer"`
	DateField     string `env:"PIPELINE_DATE_FIELD" default:"Inv Date"`
	SalesField    string `env:"PIPELINE_SALES_FIELD" default:"Sales Amt"`
	QuantityField string `env:"PIPELINE_QUANTITY_FIELD" default:"Qty"`

	// EnumerationCap limits rows kept by an enumeration numeric filter (default: 1000)
	EnumerationCap int `env:"PIPELINE_ENUMERATION_CAP" default:"1000"`

	// MaxConcurrent is the maximum number of simultaneous runs (default: 4)
	MaxConcurrent int `env:"PIPELINE_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"PIPELINE_MAX_WAIT_TIME" default:"30s"`
}

// Fields returns the designated fields as the pipeline expects them.
func (c *PipelineConfig) Fields() core.Fields {
	return core.Fields{
		Region:      c.RegionField,
		Dealer:      c.DealerField,
		InvoiceDate: c.DateField,
		SalesAmount: c.SalesField,
		Quantity:    c.QuantityField,
	}
}

// RateLimitConfig is a fixed one-minute window per client address.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig covers proxy trust and API key checks on /api routes.
// List values are comma separated.
type SecurityConfig struct {
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
	RequireAPIKey  bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys        []string `env:"API_KEYS"`
}

// LoggingConfig selects the slog level (debug, info, warn, error) and
// handler format (text, json).
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr is the host:port the server listens on.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
