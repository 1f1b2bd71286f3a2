// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Gateway configuration
	Gateway GatewayConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"
}

// GatewayConfig holds the remote processor configuration.
type GatewayConfig struct {
	// Driver selects the gateway client: "xipay" (default) or "authnet".
	Driver string

	// Mode is "test" or "live"; the legacy driver picks its endpoint from it.
	Mode string

	EndpointURL   string
	User          string
	Password      string
	MerchantID    string
	InterceptGUID string
	InterceptPSK  string
	InterceptURL  string

	// ApprovedCodes overrides the response codes treated as approvals.
	// Empty means the interpreter default.
	ApprovedCodes []int

	// AcceptedCardTypes limits card brands; empty accepts all.
	AcceptedCardTypes []string
}

// Credentials converts the gateway section into the typed credential struct
// consumed by the clients.
func (g GatewayConfig) Credentials() domain.GatewayCredentials {
	return domain.GatewayCredentials{
		EndpointURL:   g.EndpointURL,
		User:          g.User,
		Password:      g.Password,
		MerchantID:    g.MerchantID,
		InterceptGUID: g.InterceptGUID,
		InterceptPSK:  g.InterceptPSK,
		InterceptURL:  g.InterceptURL,
	}
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Gateway: GatewayConfig{
			Driver:            getEnv("GATEWAY_DRIVER", "xipay"),
			Mode:              getEnv("GATEWAY_MODE", "test"),
			EndpointURL:       getEnv("XIPAY_URL", ""),
			User:              getEnv("XIPAY_USER", ""),
			Password:          getEnv("XIPAY_PASSWORD", ""),
			MerchantID:        getEnv("XIPAY_MERCHANT_ID", ""),
			InterceptGUID:     getEnv("XIINTERCEPT_GUID", ""),
			InterceptPSK:      getEnv("XIINTERCEPT_PSK", ""),
			InterceptURL:      getEnv("XIINTERCEPT_URL", ""),
			ApprovedCodes:     getEnvInts("GATEWAY_APPROVED_CODES"),
			AcceptedCardTypes: getEnvList("ACCEPTED_CARD_TYPES"),
		},
	}
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvInts retrieves a comma-separated environment variable as integers.
// Malformed entries are skipped.
func getEnvInts(key string) []int {
	var out []int
	for _, p := range getEnvList(key) {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
