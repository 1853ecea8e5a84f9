// Package config loads fault simulator settings from YAML and the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config contains all fault simulator settings.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Simulation contains fault simulation settings.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Vectors contains test vector generation settings.
	Vectors VectorConfig `json:"vectors" yaml:"vectors"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`

	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server"`
}

// SimulationConfig contains fault simulation settings.
type SimulationConfig struct {
	Mode    string        `json:"mode" yaml:"mode" validate:"oneof=serial parallel"`
	Workers int           `json:"workers" yaml:"workers" validate:"gte=0"` // 0 selects GOMAXPROCS
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"` // 0 disables the timeout
	Verify  bool          `json:"verify" yaml:"verify"`                    // cross-check serial and parallel
}

// VectorConfig contains settings used when no vector file is supplied.
type VectorConfig struct {
	Source string `json:"source" yaml:"source" validate:"oneof=exhaustive random"`
	Count  int    `json:"count" yaml:"count" validate:"gte=1"`
	Seed   int64  `json:"seed" yaml:"seed"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=error warning warn info debug trace ERROR WARNING WARN INFO DEBUG TRACE"`
	File  string `json:"file" yaml:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr          string `json:"addr" yaml:"addr" validate:"required"`
	MaxUploadSize int64  `json:"max_upload_size" yaml:"max_upload_size" validate:"gte=1024"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			Mode:    "parallel",
			Workers: 0,
			Timeout: 5 * time.Minute,
		},
		Vectors: VectorConfig{
			Source: "exhaustive",
			Count:  256,
			Seed:   1,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadSize: 8 << 20,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// FAULTSIM_* environment variables, in that order of precedence.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadConfigFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := loadConfigFromEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

func loadConfigFromEnv(cfg *Config) error {
	if v := os.Getenv("FAULTSIM_MODE"); v != "" {
		cfg.Simulation.Mode = v
	}
	if v := os.Getenv("FAULTSIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "FAULTSIM_WORKERS")
		}
		cfg.Simulation.Workers = n
	}
	if v := os.Getenv("FAULTSIM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "FAULTSIM_TIMEOUT")
		}
		cfg.Simulation.Timeout = d
	}
	if v := os.Getenv("FAULTSIM_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "FAULTSIM_VERIFY")
		}
		cfg.Simulation.Verify = b
	}
	if v := os.Getenv("FAULTSIM_VECTOR_SOURCE"); v != "" {
		cfg.Vectors.Source = v
	}
	if v := os.Getenv("FAULTSIM_VECTOR_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "FAULTSIM_VECTOR_COUNT")
		}
		cfg.Vectors.Count = n
	}
	if v := os.Getenv("FAULTSIM_VECTOR_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "FAULTSIM_VECTOR_SEED")
		}
		cfg.Vectors.Seed = n
	}
	if v := os.Getenv("FAULTSIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FAULTSIM_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("FAULTSIM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return nil
}

var validate = validator.New()

// Validate checks the configuration for invalid values
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}
