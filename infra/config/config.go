package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Path is the default location of the config file.
const Path = "infra/config/harmonic.yaml"

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the settings of a similarity computation.
type Config struct {
	Mode        model.Mode `yaml:"mode"`
	Align       bool       `yaml:"align"`
	InPlace     bool       `yaml:"in_place"`
	Statistics  bool       `yaml:"statistics"`
	Workers     int        `yaml:"workers"`
	Jitter      float64    `yaml:"jitter"`
	LogLevel    string     `yaml:"log_level"`
	Output      string     `yaml:"output"`
	MetricsPort int        `yaml:"metrics_port"`
}

// Default returns the default config.
func Default() Config {
	return Config{
		Mode:     model.Shrinkage,
		Jitter:   1e-10,
		LogLevel: zerolog.LevelInfoValue,
	}
}

// Load loads the config from the given yaml file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("could not decode config '%s' %s: %w", path, err.Error(), ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad loads the config from the given path and panics on failure.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("could not load config from %s: %s", path, err.Error()))
	}
	log.Info().Str("path", path).Str("mode", string(cfg.Mode)).Msg("loaded config")
	return cfg
}

// Validate checks the config values and normalises the mode.
func (c *Config) Validate() error {
	mode, err := model.ParseMode(string(c.Mode))
	if err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidConfig)
	}
	c.Mode = mode
	if c.Workers < 0 {
		return fmt.Errorf("negative workers %d: %w", c.Workers, ErrInvalidConfig)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("negative jitter %v: %w", c.Jitter, ErrInvalidConfig)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range: %w", c.MetricsPort, ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses the log level.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level '%s': %w", c.LogLevel, ErrInvalidConfig)
	}
	return level, nil
}
