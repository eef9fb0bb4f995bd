package mcpd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML file shape for server configuration. Durations are Go
// duration strings ("30m", "90s"). Zero values fall back to the Options
// defaults.
type Config struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Endpoint       string `yaml:"endpoint"`
	SessionTimeout string `yaml:"session_timeout"`
	SweepInterval  string `yaml:"sweep_interval"`
	Name           string `yaml:"name"`
	Version        string `yaml:"version"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config YAML: %w", err)
	}

	return cfg, nil
}

// Options converts the file config into server options.
func (c Config) Options() (Options, error) {
	opts := Options{
		Host:     c.Host,
		Port:     c.Port,
		Endpoint: c.Endpoint,
		Name:     c.Name,
		Version:  c.Version,
	}

	if c.SessionTimeout != "" {
		d, err := time.ParseDuration(c.SessionTimeout)
		if err != nil {
			return Options{}, fmt.Errorf("invalid session_timeout: %w", err)
		}
		opts.SessionTimeout = d
	}
	if c.SweepInterval != "" {
		d, err := time.ParseDuration(c.SweepInterval)
		if err != nil {
			return Options{}, fmt.Errorf("invalid sweep_interval: %w", err)
		}
		opts.SweepInterval = d
	}

	return opts, nil
}
