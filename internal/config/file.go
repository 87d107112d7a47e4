package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Every field is
// optional; env vars take precedence over anything set here.
type FileConfig struct {
	ServerURL         string
	WSPath            string
	ListenPort        string
	LogLevel          string
	ReconnectInterval time.Duration
	NotifyInterval    time.Duration
}

// rawFileConfig is the on-disk shape. Durations are strings ("10s", "1m")
// because yaml.v3 has no native time.Duration decoding.
type rawFileConfig struct {
	ServerURL         string `yaml:"server_url"`
	WSPath            string `yaml:"ws_path"`
	ListenPort        string `yaml:"listen_port"`
	LogLevel          string `yaml:"log_level"`
	ReconnectInterval string `yaml:"reconnect_interval"`
	NotifyInterval    string `yaml:"notify_interval"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (FileConfig, error) {
	var f FileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw rawFileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return f, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	f.ServerURL = raw.ServerURL
	f.WSPath = raw.WSPath
	f.ListenPort = raw.ListenPort
	f.LogLevel = raw.LogLevel
	if f.ReconnectInterval, err = parseOptionalDuration(raw.ReconnectInterval); err != nil {
		return f, fmt.Errorf("invalid reconnect_interval: %w", err)
	}
	if f.NotifyInterval, err = parseOptionalDuration(raw.NotifyInterval); err != nil {
		return f, fmt.Errorf("invalid notify_interval: %w", err)
	}
	return f, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// loadFileFromEnv loads TDECK_CONFIG_FILE when set. A missing or broken
// file is fatal: a config file that was asked for but cannot be used should
// never be silently ignored.
func loadFileFromEnv() FileConfig {
	path := os.Getenv("TDECK_CONFIG_FILE")
	if path == "" {
		return FileConfig{}
	}
	f, err := LoadFile(path)
	if err != nil {
		log.Panicf("❌ FATAL: %v", err)
	}
	return f
}
