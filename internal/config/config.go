// Package config loads sensecam settings from flags, an optional YAML file
// and SENSECAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SENSECAM_USERNAME.
const EnvPrefix = "SENSECAM"

// Config holds everything the CLI needs.
type Config struct {
	Username   string     `mapstructure:"username"`
	Password   string     `mapstructure:"password"`
	Scope      []string   `mapstructure:"scope"`
	ProbeTypes []string   `mapstructure:"probe_types"`
	Output     string     `mapstructure:"output"`
	Scan       ScanConfig `mapstructure:"scan"`
}

// ScanConfig bounds the per-device fan-out of the scan command.
type ScanConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	Rate        float64 `mapstructure:"rate"`
}

// Load reads cfgFile if given, otherwise looks for sensecam.yaml in the
// working directory and then in the home directory. A missing file is not an
// error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sensecam")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the CLI cannot act on.
func (c *Config) Validate() error {
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if c.Scan.Rate <= 0 {
		return fmt.Errorf("scan.rate must be positive, got %v", c.Scan.Rate)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("username", "admin")
	v.SetDefault("password", "")
	v.SetDefault("scope", []string{})
	v.SetDefault("probe_types", []string{})
	v.SetDefault("output", "text")
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.rate", 5.0)
}
