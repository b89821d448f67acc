package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. REGIONOCR_SERVER_PORT
const EnvPrefix = "REGIONOCR"

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Upload    UploadConfig    `mapstructure:"upload" yaml:"upload"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Cert         string `mapstructure:"cert" yaml:"cert"`
	Key          string `mapstructure:"key" yaml:"key"`
	CA           string `mapstructure:"ca" yaml:"ca"`
	MTLS         bool   `mapstructure:"mtls" yaml:"mtls"`
	AutoGenerate bool   `mapstructure:"auto_generate" yaml:"auto_generate"`
}

type StoreConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // file, memory, sqlite, postgres
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type DataConfig struct {
	Root string `mapstructure:"root" yaml:"root"` // directory holding one sub-directory per job
}

type ExportConfig struct {
	Template string `mapstructure:"template" yaml:"template"` // empty selects the built-in template
}

type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"` // 0 serves /metrics on the API port
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"` // 0 disables upload rate limiting
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Dir   string `mapstructure:"dir" yaml:"dir"` // empty logs to stdout only
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// Defaults lists every key with its default value
var Defaults = map[string]interface{}{
	"server.port":              8000,
	"server.read_timeout":      "30s",
	"server.write_timeout":     "60s",
	"server.shutdown_timeout":  "15s",
	"server.tls.enabled":       false,
	"server.tls.cert":          "certs/server.crt",
	"server.tls.key":           "certs/server.key",
	"server.tls.ca":            "",
	"server.tls.mtls":          false,
	"server.tls.auto_generate": false,
	"store.type":               "file",
	"store.dsn":                "",
	"data.root":                "runtime/jobs",
	"export.template":          "",
	"pipeline.concurrency":     1,
	"metrics.enabled":          true,
	"metrics.port":             0,
	"tracing.enabled":          false,
	"tracing.endpoint":         "localhost:4318",
	"tracing.environment":      "development",
	"ratelimit.rps":            5.0,
	"ratelimit.burst":          10,
	"log.level":                "info",
	"log.json":                 false,
	"log.dir":                  "",
	"upload.max_bytes":         32 << 20,
}

// SetDefaults registers Defaults and the environment binding on v
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads cfgFile (if set) on top of the defaults and environment
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and combinations
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	switch c.Store.Type {
	case "file", "memory", "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("store.type %q is not one of file, memory, sqlite, postgres", c.Store.Type))
	}
	if (c.Store.Type == "postgres" || c.Store.Type == "postgresql") && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required for postgres"))
	}
	if c.Data.Root == "" {
		errs = append(errs, errors.New("data.root must not be empty"))
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be >= 1, got %d", c.Pipeline.Concurrency))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port must be in 0..65535, got %d", c.Metrics.Port))
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("ratelimit needs rps >= 0 and burst >= 1 when enabled"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.Cert == "" || c.Server.TLS.Key == "") {
		errs = append(errs, errors.New("server.tls.cert and server.tls.key are required when TLS is enabled"))
	}
	if c.Server.TLS.MTLS && c.Server.TLS.CA == "" {
		errs = append(errs, errors.New("server.tls.ca is required for mTLS"))
	}
	return errors.Join(errs...)
}
