package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	APIBaseURL          string
	StateDBPath         string
	OutputDir           string
	CallbackPort        int
	HTTPRequestTimeout  time.Duration
	TrustRedirectUnlock bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "production"),
		APIBaseURL:          getEnv("BLUR_API_URL", "https://blursell-backend.onrender.com"),
		StateDBPath:         os.Getenv("BLUR_STATE_DB"),
		OutputDir:           getEnv("BLUR_OUTPUT_DIR", "."),
		CallbackPort:        getEnvInt("CALLBACK_PORT", 8714),
		HTTPRequestTimeout:  time.Second * time.Duration(getEnvInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60)),
		TrustRedirectUnlock: getEnvBool("TRUST_REDIRECT_ON_FAILURE", true),
	}

	if cfg.StateDBPath == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state db path: %w", err)
		}
		cfg.StateDBPath = filepath.Join(base, "blurclient", "state.db")
	}

	if cfg.CallbackPort <= 0 || cfg.CallbackPort > 65535 {
		return nil, fmt.Errorf("CALLBACK_PORT out of range: %d", cfg.CallbackPort)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
