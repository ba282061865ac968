// Package config holds the server defaults and loads overrides from an
// optional config file and MCPVARIANCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the effective server configuration.
type Config struct {
	AllowedDirs   []string `mapstructure:"allowed_dirs"`
	DisabledTools []string `mapstructure:"disabled_tools"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json, console

	HTTPAddr string `mapstructure:"http_addr"`

	MaxConcurrentRequests int   `mapstructure:"max_concurrent_requests"`
	MaxOpenWorkspaces     int   `mapstructure:"max_open_workspaces"`
	MaxFileBytes          int64 `mapstructure:"max_file_bytes"`
	MaxUploadBytes        int64 `mapstructure:"max_upload_bytes"`
	MaxPageSize           int   `mapstructure:"max_page_size"`

	OperationTimeout      time.Duration `mapstructure:"operation_timeout"`
	AcquireRequestTimeout time.Duration `mapstructure:"acquire_request_timeout"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout"`
	WorkspaceIdleTTL      time.Duration `mapstructure:"workspace_idle_ttl"`

	DefaultSheet  string `mapstructure:"default_sheet"`
	StrictColumns bool   `mapstructure:"strict_columns"`
	ContextModel  string `mapstructure:"context_model"`
}

// Load reads configuration from path (YAML, TOML or JSON by extension) when
// path is non-empty, then applies MCPVARIANCE_* environment overrides on top
// of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	cfg.AllowedDirs = splitList(v.Get("allowed_dirs"), filepath.SplitList)
	cfg.DisabledTools = splitList(v.Get("disabled_tools"), func(s string) []string { return strings.Split(s, ",") })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allowed_dirs", []string{})
	v.SetDefault("disabled_tools", []string{})
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", "json")
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("max_concurrent_requests", DefaultMaxConcurrentRequests)
	v.SetDefault("max_open_workspaces", DefaultMaxOpenWorkspaces)
	v.SetDefault("max_file_bytes", DefaultMaxFileBytes)
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("max_page_size", DefaultMaxPageSize)
	v.SetDefault("operation_timeout", DefaultOperationTimeout)
	v.SetDefault("acquire_request_timeout", DefaultAcquireRequestTimeout)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("workspace_idle_ttl", DefaultWorkspaceIdleTTL)
	v.SetDefault("default_sheet", DefaultSheetName)
	v.SetDefault("strict_columns", false)
	v.SetDefault("context_model", "gpt-4o")
}

// splitList accepts either a list from a config file or a single delimited
// string from the environment.
func splitList(raw any, split func(string) []string) []string {
	var items []string
	switch val := raw.(type) {
	case string:
		items = split(val)
	case []string:
		items = val
	case []any:
		for _, x := range val {
			items = append(items, fmt.Sprint(x))
		}
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxConcurrentRequests <= 0 {
		errs = append(errs, errors.New("max_concurrent_requests must be > 0"))
	}
	if c.MaxOpenWorkspaces <= 0 {
		errs = append(errs, errors.New("max_open_workspaces must be > 0"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be > 0"))
	}
	if c.MaxPageSize <= 0 {
		errs = append(errs, errors.New("max_page_size must be > 0"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
