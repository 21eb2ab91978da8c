package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

// ConfigFileEnv names the optional YAML file read before the environment.
const ConfigFileEnv = "MEDIBOOK_CONFIG"

type Config struct {
	APIURL         string        `yaml:"api_url"`         // Backend base URL (default: http://localhost:5000)
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per HTTP call (default: 30s)
	RefreshTimeout time.Duration `yaml:"refresh_timeout"` // Per token refresh (default: 30s)
	Store          string        `yaml:"store"`           // file, sqlite, bolt or memory (default: file)
	StorePath      string        `yaml:"store_path"`      // Optional: defaults under the user config dir
	MasterKeyPath  string        `yaml:"master_key_path"` // Optional: seals stored credentials when set
	Watch          bool          `yaml:"watch"`           // Follow changes made by other processes (file store only)
	RateLimit      int           `yaml:"rate_limit"`      // Requests per minute per route, 0 disables (default: 0)
	RateBurst      int           `yaml:"rate_burst"`      // (default: 5)
	Env            string        `yaml:"env"`             // (default: dev)
	LogLevel       string        `yaml:"log_level"`       // (default: warn)
	LogFormat      string        `yaml:"log_format"`      // json or text (default: text)

	MockAddr    string `yaml:"mock_addr"`     // serve-mock listen address (default: 127.0.0.1:5000)
	MockKeyPath string `yaml:"mock_key_path"` // Optional: persists the mock signing key
}

func defaultConfig() Config {
	return Config{
		APIURL:         "http://localhost:5000",
		RequestTimeout: 30 * time.Second,
		RefreshTimeout: 30 * time.Second,
		Store:          StoreFile,
		RateBurst:      5,
		Env:            "dev",
		LogLevel:       "warn",
		LogFormat:      "text",
		MockAddr:       "127.0.0.1:5000",
	}
}

// LoadConfig layers defaults, the YAML file named by MEDIBOOK_CONFIG, and
// environment variables, in that order.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIURL = getEnvOrDefault("MEDIBOOK_API_URL", cfg.APIURL)
	cfg.RequestTimeout = getEnvDurationOrDefault("MEDIBOOK_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RefreshTimeout = getEnvDurationOrDefault("MEDIBOOK_REFRESH_TIMEOUT", cfg.RefreshTimeout)
	cfg.Store = getEnvOrDefault("MEDIBOOK_STORE", cfg.Store)
	cfg.StorePath = getEnvOrDefault("MEDIBOOK_STORE_PATH", cfg.StorePath)
	cfg.MasterKeyPath = getEnvOrDefault("MEDIBOOK_MASTER_KEY_PATH", cfg.MasterKeyPath)
	cfg.Watch = getEnvBoolOrDefault("MEDIBOOK_WATCH", cfg.Watch)
	cfg.RateLimit = getEnvIntOrDefault("MEDIBOOK_RATE_LIMIT", cfg.RateLimit)
	cfg.RateBurst = getEnvIntOrDefault("MEDIBOOK_RATE_BURST", cfg.RateBurst)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.MockAddr = getEnvOrDefault("MEDIBOOK_MOCK_ADDR", cfg.MockAddr)
	cfg.MockKeyPath = getEnvOrDefault("MEDIBOOK_MOCK_KEY_PATH", cfg.MockKeyPath)

	if cfg.StorePath == "" {
		path, err := defaultStorePath(cfg.Store)
		if err != nil {
			return Config{}, err
		}
		cfg.StorePath = path
	}
	return cfg, nil
}

func defaultStorePath(store string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}

	name := "credentials.json"
	switch store {
	case StoreSQLite:
		name = "credentials.db"
	case StoreBolt:
		name = "credentials.bolt"
	}
	return filepath.Join(dir, "medibook", name), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
