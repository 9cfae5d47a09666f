// Package config loads client configuration from defaults, an optional YAML
// file, and environment variable overrides, in that order of precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("commander.yaml").
//	    WithEnvPrefix("COMMANDER").
//	    Load()
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	// Server is the execution server to talk to.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Fetch paces and retries artifact downloads.
	Fetch FetchConfig `yaml:"fetch" env:"FETCH"`

	// Remote configures attachment to a provisioned worker.
	Remote RemoteConfig `yaml:"remote" env:"REMOTE"`

	// Session bounds job execution.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the prometheus collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ServerConfig locates the execution server.
type ServerConfig struct {
	// BaseURL of the server, e.g. "http://127.0.0.1:8188".
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// HTTPTimeout bounds individual HTTP requests.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
}

// FetchConfig controls artifact download behavior.
type FetchConfig struct {
	// MaxRetries after the first failed attempt.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// InitialDelay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// MaxDelay caps the backoff.
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// Multiplier grows the delay between retries.
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// RateRPS caps fetches per second; 0 disables the cap.
	RateRPS float64 `yaml:"rate_rps" env:"RATE_RPS"`
	// RateBurst is the bucket size when RateRPS is set.
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
}

// RemoteConfig describes a worker started out of band.
type RemoteConfig struct {
	// Endpoint of the rented worker's server.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// WorkerID labels the worker in logs.
	WorkerID string `yaml:"worker_id" env:"WORKER_ID"`
	// ReadyRetries is the number of readiness probes before giving up.
	ReadyRetries int `yaml:"ready_retries" env:"READY_RETRIES"`
	// ReadyInterval is the initial spacing between probes.
	ReadyInterval time.Duration `yaml:"ready_interval" env:"READY_INTERVAL"`
}

// SessionConfig bounds job runs.
type SessionConfig struct {
	// Timeout for a whole run; 0 means no bound.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths for the logger.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// MetricsConfig configures the prometheus collector.
type MetricsConfig struct {
	// Enabled turns metric registration on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader builds a Config from defaults, a YAML file, and the environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "COMMANDER"}
}

// WithConfigPath sets the YAML file to read. A missing file is not an error;
// the defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then the YAML file,
// then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "server.base_url must be an absolute URL")
		}
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch.max_retries must not be negative")
	}
	if c.Fetch.Multiplier != 0 && c.Fetch.Multiplier < 1 {
		errs = append(errs, "fetch.multiplier must be at least 1")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
