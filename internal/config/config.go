// Package config loads engine settings from the environment (populated from
// an optional .env file in main.go).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Destinations lists the destination names that accept credentials.
var Destinations = []string{"duckdb", "sqlite", "postgres", "mssql", "mongodb"}

// Config holds all settings for one pipeline run. Nested keys map to
// environment variables with "__" as separator, e.g. normalize.workers is
// read from NORMALIZE__WORKERS.
type Config struct {
	Extract      ExtractConfig                `mapstructure:"extract"`
	Normalize    NormalizeConfig              `mapstructure:"normalize"`
	Load         LoadStageConfig              `mapstructure:"load"`
	Runtime      RuntimeConfig                `mapstructure:"runtime"`
	PipelinesDir string                       `mapstructure:"pipelines_dir"`
	Destination  map[string]DestinationConfig `mapstructure:"destination"`
}

type ExtractConfig struct {
	Workers int `mapstructure:"workers"`
}

type NormalizeConfig struct {
	Workers    int              `mapstructure:"workers"`
	DataWriter DataWriterConfig `mapstructure:"data_writer"`
}

// DataWriterConfig sizes the extract buffers and the load jobs.
type DataWriterConfig struct {
	BufferMaxItems int `mapstructure:"buffer_max_items"`
	FileMaxItems   int `mapstructure:"file_max_items"`
}

type LoadStageConfig struct {
	Workers int `mapstructure:"workers"`
}

type RuntimeConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// RequestTimeout and RequestMaxRetryDelay are in seconds.
	RequestTimeout       float64 `mapstructure:"request_timeout"`
	RequestMaxAttempts   int     `mapstructure:"request_max_attempts"`
	RequestBackoffFactor float64 `mapstructure:"request_backoff_factor"`
	RequestMaxRetryDelay float64 `mapstructure:"request_max_retry_delay"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
}

type DestinationConfig struct {
	Credentials string `mapstructure:"credentials"`
}

// SetDefaults registers the job's engine settings. Every key gets a default
// so that AutomaticEnv can override it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("extract.workers", 5)
	v.SetDefault("normalize.workers", 2)
	v.SetDefault("normalize.data_writer.buffer_max_items", 10000)
	v.SetDefault("normalize.data_writer.file_max_items", 100000)
	v.SetDefault("load.workers", 3)

	v.SetDefault("runtime.log_level", "INFO")
	v.SetDefault("runtime.log_format", "text")
	v.SetDefault("runtime.request_timeout", 60)
	v.SetDefault("runtime.request_max_attempts", 5)
	v.SetDefault("runtime.request_backoff_factor", 1)
	v.SetDefault("runtime.request_max_retry_delay", 300)
	v.SetDefault("runtime.requests_per_second", 10)

	v.SetDefault("pipelines_dir", "")
	for _, name := range Destinations {
		v.SetDefault("destination."+name+".credentials", "")
	}
}

// NewViper returns a viper instance bound to the process environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	return LoadWithViper(NewViper())
}

func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.PipelinesDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "cannot resolve pipelines dir")
		}
		cfg.PipelinesDir = filepath.Join(home, ".jaffle-shop", "pipelines")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	positive := map[string]int{
		"EXTRACT__WORKERS":                         c.Extract.Workers,
		"NORMALIZE__WORKERS":                       c.Normalize.Workers,
		"NORMALIZE__DATA_WRITER__BUFFER_MAX_ITEMS": c.Normalize.DataWriter.BufferMaxItems,
		"NORMALIZE__DATA_WRITER__FILE_MAX_ITEMS":   c.Normalize.DataWriter.FileMaxItems,
		"LOAD__WORKERS":                            c.Load.Workers,
		"RUNTIME__REQUEST_MAX_ATTEMPTS":            c.Runtime.RequestMaxAttempts,
	}
	for key, val := range positive {
		if val < 1 {
			return errors.Newf("%s must be at least 1, got %d", key, val)
		}
	}
	if c.Runtime.RequestTimeout <= 0 {
		return errors.Newf("RUNTIME__REQUEST_TIMEOUT must be positive, got %v", c.Runtime.RequestTimeout)
	}
	if c.Runtime.RequestsPerSecond <= 0 {
		return errors.Newf("RUNTIME__REQUESTS_PER_SECOND must be positive, got %v", c.Runtime.RequestsPerSecond)
	}
	return nil
}

// Credentials returns the configured credentials of a destination.
func (c *Config) Credentials(destination string) string {
	return c.Destination[destination].Credentials
}

// Seconds converts a config value in seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
