package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8088"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ServerURL    string // base URL of the traffic control server (ex: http://traefik-manager:8001)
	WSPath       string // websocket path on the control server
	ServicesPath string // fallback snapshot fetch path
	UpdatePath   string // traffic write-back path

	ReconnectInterval time.Duration // fixed wait between channel reconnect attempts
	NotifyInterval    time.Duration // per-category notification suppression window
	HandshakeTimeout  time.Duration // websocket handshake deadline
	HTTPTimeout       time.Duration // timeout for snapshot fetch / write-back calls
}

// Load builds the configuration. Precedence: env vars override the optional
// YAML file (TDECK_CONFIG_FILE), which overrides built-in defaults.
// TDECK_SERVER_URL (or server_url in the file) is required.
func Load() *Config {
	f := loadFileFromEnv()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("TDECK_LISTEN_PORT", fallback(f.ListenPort, ":8088")),
		ShutdownTimeout: mustDuration("TDECK_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("TDECK_LOG_LEVEL", fallback(f.LogLevel, "info")),
		PrettyLog: mustBool("TDECK_PRETTY_LOG", true),

		// Control server
		ServerURL:    getenv("TDECK_SERVER_URL", f.ServerURL),
		WSPath:       getenv("TDECK_WS_PATH", fallback(f.WSPath, "/ws/traefik-services")),
		ServicesPath: getenv("TDECK_SERVICES_PATH", "/api/traefik-services"),
		UpdatePath:   getenv("TDECK_UPDATE_PATH", "/api/update-traffic-config"),

		// Sync behavior
		ReconnectInterval: mustDuration("TDECK_RECONNECT_INTERVAL", fallbackDuration(f.ReconnectInterval, 10*time.Second)),
		NotifyInterval:    mustDuration("TDECK_NOTIFY_INTERVAL", fallbackDuration(f.NotifyInterval, 30*time.Second)),
		HandshakeTimeout:  mustDuration("TDECK_HANDSHAKE_TIMEOUT", 10*time.Second),
		HTTPTimeout:       mustDuration("TDECK_HTTP_TIMEOUT", 10*time.Second),
	}

	if cfg.ServerURL == "" {
		panic("❌ FATAL: TDECK_SERVER_URL is not set and the config file provides no server_url")
	}

	return cfg
}

// WSURL derives the realtime channel endpoint from the server base URL:
// same host and port, fixed path, http(s) scheme swapped for ws(s).
func (c *Config) WSURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.WSPath
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func fallbackDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
