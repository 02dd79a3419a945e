package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DiscoveryConfig struct {
	// IdleWindowSeconds is how long discovery waits after the last reply
	// before giving up on further printers.
	IdleWindowSeconds int `yaml:"idle_window_seconds"`
}

type MonitorConfig struct {
	// StatusPort overrides the printers' websocket port. 0 keeps the
	// protocol default (3030).
	StatusPort int `yaml:"status_port"`
	// Reconnect backoff bounds in seconds.
	BackoffMinSeconds int `yaml:"backoff_min_seconds"`
	BackoffMaxSeconds int `yaml:"backoff_max_seconds"`
}

type NotifyConfig struct {
	// Buffer is the size of the asynchronous notification queue.
	Buffer int `yaml:"buffer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 7130,
		},
		Discovery: DiscoveryConfig{
			IdleWindowSeconds: 3,
		},
		Monitor: MonitorConfig{
			BackoffMinSeconds: 1,
			BackoffMaxSeconds: 30,
		},
		Notify: NotifyConfig{
			Buffer: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the YAML config at path on top of the defaults. A
// missing file is not an error; the monitor runs fine unconfigured.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IdleWindow() time.Duration {
	return time.Duration(c.Discovery.IdleWindowSeconds) * time.Second
}

func (c *Config) BackoffMin() time.Duration {
	return time.Duration(c.Monitor.BackoffMinSeconds) * time.Second
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Monitor.BackoffMaxSeconds) * time.Second
}
