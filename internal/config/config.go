package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	TransportUDS  = "uds"
	TransportHTTP = "http"

	DefaultServer  = "http://127.0.0.1:8080/api/v1"
	DefaultSocket  = "/tmp/predator.sock"
	DefaultTimeout = 60 * time.Second
)

// Config is the CLI and session daemon configuration.
type Config struct {
	Transport string        `yaml:"transport" env:"PREDATOR_TRANSPORT"`
	Server    string        `yaml:"server" env:"PREDATOR_SERVER"`
	Socket    string        `yaml:"socket" env:"PREDATOR_SOCKET"`
	Timeout   time.Duration `yaml:"timeout" env:"PREDATOR_TIMEOUT"`
	LogLevel  string        `yaml:"log_level,omitempty" env:"PREDATOR_LOG_LEVEL"`
}

func Default() Config {
	return Config{
		Transport: TransportUDS,
		Server:    DefaultServer,
		Socket:    DefaultSocket,
		Timeout:   DefaultTimeout,
	}
}

// Path is $PREDATOR_CONFIG, or ~/.predator/config.yaml.
func Path() (string, error) {
	if p := strings.TrimSpace(os.Getenv("PREDATOR_CONFIG")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".predator", "config.yaml"), nil
}

// Load reads the config file and applies environment overrides on top.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path without environment overrides. A missing file yields
// the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.Server == "" {
		c.Server = d.Server
	}
	if c.Socket == "" {
		c.Socket = d.Socket
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportUDS, TransportHTTP:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportUDS, TransportHTTP, c.Transport)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Set assigns one field by its YAML key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "transport":
		c.Transport = value
	case "server":
		c.Server = value
	case "socket":
		c.Socket = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return c.Validate()
}
