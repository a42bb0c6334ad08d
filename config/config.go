package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/log"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "OFFLOAD"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Log     log.Config    `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	ListenAddress   string        `yaml:"listenAddress"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type PoolConfig struct {
	MinWorkers  int           `yaml:"minWorkers"`
	MaxWorkers  int           `yaml:"maxWorkers"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listenAddress"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:   "0.0.0.0:50051",
			ShutdownTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			MinWorkers:  1,
			MaxWorkers:  4,
			IdleTimeout: time.Minute,
		},
		Log: log.Config{
			Level: "info",
		},
		Metrics: MetricsConfig{
			ListenAddress: "0.0.0.0:9090",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies OFFLOAD_* environment
// overrides. An empty path only applies defaults and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	}

	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Pool.MinWorkers < 1 {
		return errs.New(errs.ErrInvalidConfig, fmt.Sprintf("minWorkers must be at least 1, got %d", c.Pool.MinWorkers))
	}
	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		return errs.New(errs.ErrInvalidConfig, fmt.Sprintf("maxWorkers (%d) must not be lower than minWorkers (%d)", c.Pool.MaxWorkers, c.Pool.MinWorkers))
	}
	if c.Pool.IdleTimeout < 0 {
		return errs.New(errs.ErrInvalidConfig, "idleTimeout must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errs.New(errs.ErrInvalidConfig, "server shutdownTimeout must be positive")
	}
	if c.Server.ListenAddress == "" {
		return errs.New(errs.ErrInvalidConfig, "server listenAddress is required")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return errs.New(errs.ErrInvalidConfig, "metrics listenAddress is required when metrics are enabled")
	}
	return nil
}

// ApplyEnvOverrides sets struct fields from PREFIX_SECTION_FIELD environment variables,
// e.g. OFFLOAD_POOL_MAXWORKERS.
func ApplyEnvOverrides(prefix string, target any) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to a struct")
	}
	return applyEnvToStruct(prefix, val.Elem())
}

func applyEnvToStruct(prefix string, val reflect.Value) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !field.CanSet() {
			continue
		}

		envKey := prefix + "_" + strings.ToUpper(fieldType.Name)

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(envKey, field); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
