package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"betmirror/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL      string
	DatabaseName     string
	DatabaseMaxConns int32

	// Logging
	LogLevel  string
	LogFormat string // "json" or "text"

	// HTTP API
	HTTPAddr string

	// NATS configuration, empty disables the bus
	NATSServers string

	// Chain configuration
	ChainRPCURL         string
	ChainID             *big.Int
	BetContractAddress  string
	ConfirmationTimeout time.Duration
	ListenerStartBlock  uint64
	ListenerInterval    time.Duration
	SignerPrivateKey    string // never logged

	// Identity service
	IdentityAPIURL    string
	IdentityAPIKey    string // never logged
	IdentityCacheTTL  time.Duration
	IdentityCacheSize int

	// Lifecycle policy
	NoArbiterCancelDelay time.Duration

	// OpenTelemetry
	OTelEnabled          bool
	OTelExporterType     string // "console", "otlp" or "none"
	OTelOTLPEndpoint     string
	OTelServiceName      string
	OTelExportIntervalMS int

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: os.Getenv("LOG_FORMAT"),

		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		NATSServers: os.Getenv("NATS_SERVERS"),

		ChainRPCURL:         os.Getenv("CHAIN_RPC_URL"),
		ChainID:             big.NewInt(8453),
		BetContractAddress:  os.Getenv("BET_CONTRACT_ADDRESS"),
		ConfirmationTimeout: 2 * time.Minute,
		ListenerInterval:    15 * time.Second,
		SignerPrivateKey:    os.Getenv("SIGNER_PRIVATE_KEY"),

		IdentityAPIURL:    os.Getenv("IDENTITY_API_URL"),
		IdentityAPIKey:    os.Getenv("IDENTITY_API_KEY"),
		IdentityCacheTTL:  5 * time.Minute,
		IdentityCacheSize: 4096,

		NoArbiterCancelDelay: 24 * time.Hour,

		OTelEnabled:          os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:     getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:     getEnvWithDefault("OTEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelServiceName:      getEnvWithDefault("OTEL_SERVICE_NAME", "betmirror"),
		OTelExportIntervalMS: 30000,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok || id.Sign() <= 0 {
			return nil, fmt.Errorf("invalid CHAIN_ID %q", v)
		}
		config.ChainID = id
	}
	if err := parseDuration("CONFIRMATION_TIMEOUT", &config.ConfirmationTimeout); err != nil {
		return nil, err
	}
	if err := parseDuration("LISTENER_INTERVAL", &config.ListenerInterval); err != nil {
		return nil, err
	}
	if err := parseDuration("IDENTITY_CACHE_TTL", &config.IdentityCacheTTL); err != nil {
		return nil, err
	}
	if err := parseDuration("NO_ARBITER_CANCEL_DELAY", &config.NoArbiterCancelDelay); err != nil {
		return nil, err
	}
	if v := os.Getenv("LISTENER_START_BLOCK"); v != "" {
		block, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LISTENER_START_BLOCK %q: %w", v, err)
		}
		config.ListenerStartBlock = block
	}
	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			config.DatabaseMaxConns = int32(n)
		}
	}
	if v := os.Getenv("IDENTITY_CACHE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			config.IdentityCacheSize = size
		}
	}
	if v := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil && interval > 0 {
			config.OTelExportIntervalMS = interval
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.ChainRPCURL == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URL is required")
		}
		if config.BetContractAddress == "" {
			return nil, fmt.Errorf("BET_CONTRACT_ADDRESS is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*target = d
	return nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		LogLevel:             "debug",
		LogFormat:            "text",
		HTTPAddr:             ":0",
		ChainID:              big.NewInt(31337),
		BetContractAddress:   "0x00000000000000000000000000000000000000b1",
		ConfirmationTimeout:  time.Second,
		ListenerInterval:     time.Second,
		IdentityCacheTTL:     time.Minute,
		IdentityCacheSize:    64,
		NoArbiterCancelDelay: 24 * time.Hour,
		OTelExporterType:     "none",
		OTelServiceName:      "betmirror-test",
		OTelExportIntervalMS: 1000,
	}
}
