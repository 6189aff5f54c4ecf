// Package config loads runtime configuration from the environment.
//
// The CLI entrypoint loads a local .env file first (godotenv), so during
// development the API key and tunables can live next to the binary.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the tunable settings.
const (
	DefaultBaseURL       = "https://hyperhuman.deemos.com/api/v2"
	DefaultPollInterval  = 3 * time.Second
	DefaultPollMaxTries  = 200
	DefaultHTTPTimeout   = 120 * time.Second
	DefaultListenAddr    = ":8090"
	DefaultNormalizeSize = 1024
)

type Config struct {
	APIKey  string
	BaseURL string

	// PollInterval is the fixed delay between status polls.
	// PollMaxTries caps the poll loop; exceeding it stalls the session.
	PollInterval time.Duration
	PollMaxTries int

	HTTPTimeout   time.Duration
	ListenAddr    string
	NormalizeSize int

	// ProxyHosts are the additional hosts the media proxy may fetch from,
	// on top of the BaseURL host. Comma-separated in RODIN_PROXY_HOSTS.
	ProxyHosts []string
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		APIKey:        strings.TrimSpace(os.Getenv("RODIN_API_KEY")),
		BaseURL:       strings.TrimRight(getEnv("RODIN_BASE_URL", DefaultBaseURL), "/"),
		PollInterval:  time.Duration(getEnvInt("RODIN_POLL_INTERVAL_SECONDS", 3)) * time.Second,
		PollMaxTries:  getEnvInt("RODIN_POLL_MAX_TRIES", DefaultPollMaxTries),
		HTTPTimeout:   time.Duration(getEnvInt("RODIN_HTTP_TIMEOUT_SECONDS", 120)) * time.Second,
		ListenAddr:    getEnv("RODIN_LISTEN_ADDR", DefaultListenAddr),
		NormalizeSize: getEnvInt("RODIN_NORMALIZE_SIZE", DefaultNormalizeSize),
	}

	if hosts := strings.TrimSpace(os.Getenv("RODIN_PROXY_HOSTS")); hosts != "" {
		for _, h := range strings.Split(hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.ProxyHosts = append(cfg.ProxyHosts, h)
			}
		}
	}

	if cfg.APIKey == "" {
		return Config{}, errors.New("RODIN_API_KEY is required")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollMaxTries < 1 {
		cfg.PollMaxTries = DefaultPollMaxTries
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.NormalizeSize < 64 {
		cfg.NormalizeSize = DefaultNormalizeSize
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
