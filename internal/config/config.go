package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"adte.com/adte/adset-agent/internal/tool"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	HttpAddress  string
	HttpEnabled  bool
	ApiKey       string
	JwtSecretKey string
	DB           *DbConfig
	Log          *LogConfig
	MCP          *MCPConfig
	Meta         *MetaConfig
	Callback     *CallbackConfig
}

type DbConfig struct {
	DSN string
}

type LogConfig struct {
	Level string
	Human bool
}

type MCPConfig struct {
	Transport string
	Enabled   bool
}

type MetaConfig struct {
	AccessToken string
	GraphURL    string
	Timeout     time.Duration
	RatePerSec  float64
	Retries     int
}

// CallbackConfig controls the confirmation listener. Host is written into
// confirmation links, BindHost is the interface the listener binds.
type CallbackConfig struct {
	Host               string
	BindHost           string
	Port               int
	ConfirmationTTL    time.Duration
	UpdateDefaultsFile string
}

// NewConfig reads the process environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func NewConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	// Server configuration
	httpAddress := tool.GetEnvDefault("HTTP_ADDRESS", ":8081")
	_, httpDisabled := os.LookupEnv("HTTP_DISABLED")
	apiKey := tool.GetFileValue("ADSET_API_KEY")

	jwtSecretKey := tool.GetFileValue("JWT_SECRET_KEY")
	if !httpDisabled && jwtSecretKey == "" {
		return nil, fmt.Errorf("missing environment variable: JWT_SECRET_KEY")
	}

	// Database configuration
	dbDSN := tool.GetEnvDefault("DB_DSN", ":memory:")

	// Logging configuration
	logLevel := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	_, human := os.LookupEnv("HUMAN_LOGGING")

	// MCP configuration
	mcpTransport := os.Getenv("MCP_TRANSPORT")
	mcpEnabled := mcpTransport != ""

	// Meta Graph API configuration
	timeout, err := durationEnv("META_API_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	ratePerSec, err := floatEnv("META_API_RATE", 5)
	if err != nil {
		return nil, err
	}
	retries, err := intEnv("META_API_RETRIES", 2)
	if err != nil {
		return nil, err
	}

	// Confirmation callback configuration
	callbackPort, err := intEnv("CALLBACK_PORT", 0)
	if err != nil {
		return nil, err
	}
	if callbackPort < 0 || callbackPort > 65535 {
		return nil, fmt.Errorf("invalid CALLBACK_PORT: %d", callbackPort)
	}
	ttl, err := durationEnv("CONFIRMATION_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		HttpAddress:  httpAddress,
		HttpEnabled:  !httpDisabled,
		ApiKey:       apiKey,
		JwtSecretKey: jwtSecretKey,
		DB: &DbConfig{
			DSN: dbDSN,
		},
		Log: &LogConfig{
			Level: logLevel,
			Human: human,
		},
		MCP: &MCPConfig{
			Transport: mcpTransport,
			Enabled:   mcpEnabled,
		},
		Meta: &MetaConfig{
			AccessToken: tool.GetFileValue("META_ACCESS_TOKEN"),
			GraphURL:    strings.TrimRight(tool.GetEnvDefault("META_GRAPH_URL", "https://graph.facebook.com/v22.0"), "/"),
			Timeout:     timeout,
			RatePerSec:  ratePerSec,
			Retries:     retries,
		},
		Callback: &CallbackConfig{
			Host:               tool.GetEnvDefault("CALLBACK_HOST", "localhost"),
			BindHost:           tool.GetEnvDefault("CALLBACK_BIND_HOST", "127.0.0.1"),
			Port:               callbackPort,
			ConfirmationTTL:    ttl,
			UpdateDefaultsFile: os.Getenv("UPDATE_DEFAULTS_FILE"),
		},
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func floatEnv(name string, fallback float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}
