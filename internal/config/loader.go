package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves one environment variable. It matches os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Load reads configuration from the process environment, applies tag
// defaults and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source. Every malformed variable is
// reported, not only the first one.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	var errs []error
	walk(reflect.ValueOf(cfg).Elem(), func(f reflect.Value, tag reflect.StructTag) {
		if err := assign(f, tag, lookup); err != nil {
			errs = append(errs, err)
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// walk calls fn for every settable leaf field carrying an env tag, descending
// into nested config sections.
func walk(v reflect.Value, fn func(reflect.Value, reflect.StructTag)) {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		switch {
		case !fv.CanSet():
		case sf.Type.Kind() == reflect.Struct:
			walk(fv, fn)
		case sf.Tag.Get("env") != "":
			fn(fv, sf.Tag)
		}
	}
}

func assign(f reflect.Value, tag reflect.StructTag, lookup LookupFunc) error {
	name := tag.Get("env")
	raw, ok := lookup(name)
	if !ok || raw == "" {
		raw = tag.Get("default")
	}
	if raw == "" {
		return nil
	}

	parse, ok := parsers[f.Type()]
	if !ok {
		return fmt.Errorf("%s: unsupported field type %s", name, f.Type())
	}
	val, err := parse(raw)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", name, raw, err)
	}
	f.Set(reflect.ValueOf(val).Convert(f.Type()))
	return nil
}

var parsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeFor[string](): func(s string) (any, error) { return s, nil },
	reflect.TypeFor[int](): func(s string) (any, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	},
	reflect.TypeFor[int64](): func(s string) (any, error) {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	},
	reflect.TypeFor[bool](): func(s string) (any, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	},
	reflect.TypeFor[time.Duration](): func(s string) (any, error) {
		return time.ParseDuration(strings.TrimSpace(s))
	},
	reflect.TypeFor[[]string](): func(s string) (any, error) {
		var list []string
		for item := range strings.SplitSeq(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		return list, nil
	},
}

// problems accumulates validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	s := c.Server
	p.check(s.Port > 0 && s.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", s.Port)
	p.check(s.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(s.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	p.check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(c.Upload.MaxMemory > 0, "UPLOAD_MAX_MEMORY must be positive")

	pl := c.Pipeline
	for _, f := range [][2]string{
		{"PIPELINE_REGION_FIELD", pl.RegionField},
		{"PIPELINE_DEALER_FIELD", pl.DealerField},
		{"PIPELINE_DATE_FIELD", pl.DateField},
		{"PIPELINE_SALES_FIELD", pl.SalesField},
		{"PIPELINE_QUANTITY_FIELD", pl.QuantityField},
	} {
		p.check(strings.TrimSpace(f[1]) != "", "%s must not be empty", f[0])
	}
	p.check(pl.SalesField != pl.QuantityField, "PIPELINE_SALES_FIELD and PIPELINE_QUANTITY_FIELD must differ")
	p.check(pl.EnumerationCap > 0, "PIPELINE_ENUMERATION_CAP must be positive")
	p.check(pl.MaxConcurrent > 0, "PIPELINE_MAX_CONCURRENT must be positive")
	p.check(pl.MaxWaitTime > 0, "PIPELINE_MAX_WAIT_TIME must be positive")

	p.check(!c.Rate.Enabled || c.Rate.RequestsPerMinute > 0,
		"RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0,
		"REQUIRE_API_KEY is set but API_KEYS is empty")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		p.check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	return p.err()
}

// String is safe to log: API keys are counted, never printed.
func (c *Config) String() string {
	pl := c.Pipeline
	return fmt.Sprintf("Config{Server: %s, MaxFileSize: %d, Fields: [%s %s %s %s %s], "+
		"EnumerationCap: %d, MaxConcurrent: %d, RateLimit: %v/%d, APIKeys: %d configured, Log: %s/%s}",
		c.Server.Addr(), c.Upload.MaxFileSize,
		pl.RegionField, pl.DealerField, pl.DateField, pl.SalesField, pl.QuantityField,
		pl.EnumerationCap, pl.MaxConcurrent,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format)
}
