// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	AuthorityURL    string
	AuthorityOrigin string
	ListenAddr      string
	DBPath          string
	SecretKey       []byte

	HeartbeatInterval time.Duration
	HeartbeatFailOpen bool
	RefreshInterval   time.Duration
	SnapshotKeep      int
	ConversionRate    float64
}

// Load reads configuration from environment variables and returns a validated
// Config. WALLETLENS_SECRET_KEY (64 hex chars, AES-256) is optional; without
// it the credential store is disabled and every unlock fails. Optional
// variables with defaults: WALLETLENS_API_BASE_URL
// (https://revpro.onrender.com), WALLETLENS_LISTEN_ADDR (127.0.0.1:8080),
// WALLETLENS_DB_PATH (walletlens.db), WALLETLENS_HEARTBEAT_INTERVAL (5m),
// WALLETLENS_HEARTBEAT_POLICY (fail_closed), WALLETLENS_REFRESH_INTERVAL (5s),
// WALLETLENS_SNAPSHOT_KEEP (10), WALLETLENS_CONVERSION_RATE (0.1).
func Load() (*Config, error) {
	cfg := &Config{
		AuthorityURL:      "https://revpro.onrender.com",
		ListenAddr:        "127.0.0.1:8080",
		DBPath:            "walletlens.db",
		HeartbeatInterval: 5 * time.Minute,
		RefreshInterval:   5 * time.Second,
		SnapshotKeep:      10,
		ConversionRate:    0.1,
	}

	if v, ok := os.LookupEnv("WALLETLENS_API_BASE_URL"); ok && v != "" {
		cfg.AuthorityURL = v
	}
	origin, err := originOf(cfg.AuthorityURL)
	if err != nil {
		return nil, fmt.Errorf("WALLETLENS_API_BASE_URL is not a valid URL %q: %w", cfg.AuthorityURL, err)
	}
	cfg.AuthorityOrigin = origin

	if v, ok := os.LookupEnv("WALLETLENS_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("WALLETLENS_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("WALLETLENS_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("WALLETLENS_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("WALLETLENS_SECRET_KEY must be 32 bytes (64 hex chars), got %d", len(key))
		}
		cfg.SecretKey = key
	}

	if v, ok := os.LookupEnv("WALLETLENS_HEARTBEAT_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WALLETLENS_HEARTBEAT_INTERVAL has invalid duration %q: %w", v, err)
		}
		cfg.HeartbeatInterval = parsed
	}

	if v, ok := os.LookupEnv("WALLETLENS_HEARTBEAT_POLICY"); ok && v != "" {
		switch v {
		case "fail_open":
			cfg.HeartbeatFailOpen = true
		case "fail_closed":
			cfg.HeartbeatFailOpen = false
		default:
			return nil, fmt.Errorf("WALLETLENS_HEARTBEAT_POLICY must be fail_open or fail_closed, got %q", v)
		}
	}

	if v, ok := os.LookupEnv("WALLETLENS_REFRESH_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WALLETLENS_REFRESH_INTERVAL has invalid duration %q: %w", v, err)
		}
		cfg.RefreshInterval = parsed
	}

	if v, ok := os.LookupEnv("WALLETLENS_SNAPSHOT_KEEP"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("WALLETLENS_SNAPSHOT_KEEP must be a positive integer, got %q", v)
		}
		cfg.SnapshotKeep = parsed
	}

	if v, ok := os.LookupEnv("WALLETLENS_CONVERSION_RATE"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("WALLETLENS_CONVERSION_RATE must be a positive number, got %q", v)
		}
		cfg.ConversionRate = parsed
	}

	return cfg, nil
}

// originOf reduces a URL to its scheme://host origin, the form delegated
// completion senders declare.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host in %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
