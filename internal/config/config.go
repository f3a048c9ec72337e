// Package config loads application configuration from environment variables,
// optionally layered over a YAML file.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const envPrefix = "WABRIDGE_"

// Config holds the application configuration.
type Config struct {
	APIToken           string
	ListenAddr         string
	GatewayURL         string
	ProtocolVersion    string
	CredentialsBackend string
	AuthDir            string
	DBPath             string
	SecretKey          []byte // nil when WABRIDGE_SECRET_KEY is unset
	PhonePrefix        string
	RequestTimeout     time.Duration
	LogLevel           slog.Level
}

// fileConfig is the YAML layout accepted by WABRIDGE_CONFIG. Every key is
// optional and environment variables take precedence over it.
type fileConfig struct {
	APIToken           string `yaml:"api_token"`
	ListenAddr         string `yaml:"listen_addr"`
	GatewayURL         string `yaml:"gateway_url"`
	ProtocolVersion    string `yaml:"protocol_version"`
	CredentialsBackend string `yaml:"credentials_backend"`
	AuthDir            string `yaml:"auth_dir"`
	DBPath             string `yaml:"db_path"`
	SecretKey          string `yaml:"secret_key"`
	PhonePrefix        string `yaml:"phone_prefix"`
	RequestTimeout     string `yaml:"request_timeout"`
	LogLevel           string `yaml:"log_level"`
}

func defaults() fileConfig {
	return fileConfig{
		ListenAddr:         "0.0.0.0:3000",
		GatewayURL:         "ws://127.0.0.1:8081/v1/socket",
		ProtocolVersion:    "2.3000.1015901307",
		CredentialsBackend: BackendFile,
		AuthDir:            "auth_info",
		DBPath:             "wabridge.db",
		PhonePrefix:        "62",
		RequestTimeout:     "30s",
		LogLevel:           "info",
	}
}

// Load reads configuration and returns a validated Config. Values come from
// built-in defaults, then the YAML file named by WABRIDGE_CONFIG (if any),
// then WABRIDGE_* environment variables.
//
// WABRIDGE_API_TOKEN may be empty; the send endpoint then rejects every
// request. WABRIDGE_SECRET_KEY (64 hex chars) is required only for the
// sqlite credentials backend.
func Load() (*Config, error) {
	raw := defaults()

	if path, ok := os.LookupEnv(envPrefix + "CONFIG"); ok && path != "" {
		if err := readFile(path, &raw); err != nil {
			return nil, err
		}
	}

	overrideFromEnv(&raw)

	return raw.validate()
}

func readFile(path string, raw *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("WABRIDGE_CONFIG: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("WABRIDGE_CONFIG: parse %s: %w", path, err)
	}
	return nil
}

func overrideFromEnv(raw *fileConfig) {
	for name, dst := range map[string]*string{
		"API_TOKEN":           &raw.APIToken,
		"LISTEN_ADDR":         &raw.ListenAddr,
		"GATEWAY_URL":         &raw.GatewayURL,
		"PROTOCOL_VERSION":    &raw.ProtocolVersion,
		"CREDENTIALS_BACKEND": &raw.CredentialsBackend,
		"AUTH_DIR":            &raw.AuthDir,
		"DB_PATH":             &raw.DBPath,
		"SECRET_KEY":          &raw.SecretKey,
		"PHONE_PREFIX":        &raw.PhonePrefix,
		"REQUEST_TIMEOUT":     &raw.RequestTimeout,
		"LOG_LEVEL":           &raw.LogLevel,
	} {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
}

func (raw fileConfig) validate() (*Config, error) {
	cfg := &Config{
		APIToken:           raw.APIToken,
		ListenAddr:         raw.ListenAddr,
		GatewayURL:         raw.GatewayURL,
		ProtocolVersion:    raw.ProtocolVersion,
		CredentialsBackend: strings.ToLower(strings.TrimSpace(raw.CredentialsBackend)),
		AuthDir:            raw.AuthDir,
		DBPath:             raw.DBPath,
		PhonePrefix:        raw.PhonePrefix,
	}

	if cfg.GatewayURL == "" {
		return nil, errors.New("WABRIDGE_GATEWAY_URL must not be empty")
	}
	if !strings.HasPrefix(cfg.GatewayURL, "ws://") && !strings.HasPrefix(cfg.GatewayURL, "wss://") {
		return nil, fmt.Errorf("WABRIDGE_GATEWAY_URL %q must use ws:// or wss://", cfg.GatewayURL)
	}

	timeout, err := time.ParseDuration(raw.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("WABRIDGE_REQUEST_TIMEOUT has invalid duration %q: %w", raw.RequestTimeout, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("WABRIDGE_REQUEST_TIMEOUT must be positive, got %s", timeout)
	}
	cfg.RequestTimeout = timeout

	if err := cfg.LogLevel.UnmarshalText([]byte(raw.LogLevel)); err != nil {
		return nil, fmt.Errorf("WABRIDGE_LOG_LEVEL has invalid level %q: %w", raw.LogLevel, err)
	}

	if raw.SecretKey != "" {
		key, err := hex.DecodeString(raw.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("WABRIDGE_SECRET_KEY must be hex-encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("WABRIDGE_SECRET_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
		}
		cfg.SecretKey = key
	}

	switch cfg.CredentialsBackend {
	case BackendFile:
		if cfg.AuthDir == "" {
			return nil, errors.New("WABRIDGE_AUTH_DIR must not be empty for the file backend")
		}
	case BackendSQLite:
		if cfg.DBPath == "" {
			return nil, errors.New("WABRIDGE_DB_PATH must not be empty for the sqlite backend")
		}
		if cfg.SecretKey == nil {
			return nil, errors.New("WABRIDGE_SECRET_KEY is required for the sqlite backend")
		}
	default:
		return nil, fmt.Errorf("WABRIDGE_CREDENTIALS_BACKEND must be %q or %q, got %q",
			BackendFile, BackendSQLite, raw.CredentialsBackend)
	}

	return cfg, nil
}
