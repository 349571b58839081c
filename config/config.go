package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Payout modes
const (
	PayoutModeFixed = "fixed"
	PayoutModePool  = "pool"
)

// Store backends
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string
	StoreBackend string // "postgres" or "memory"

	// HTTP configuration
	HTTPAddr string

	// NATS configuration (optional fan-out of lifecycle events)
	NATSServers string

	// Discord configuration (optional announcer)
	DiscordToken     string
	DiscordChannelID string

	// Wheel rules
	MinQuorum         int
	AutoStartDelay    time.Duration
	EliminationTick   time.Duration
	SingleActiveWheel bool

	// Payout configuration
	PayoutMode        string // "fixed" or "pool"
	FixedPayout       int64
	WinnerPoolPercent int64
	AdminPoolPercent  int64
	AppPoolPercent    int64

	// Accounts
	StartingBalance int64
	AdminUsername   string
	AdminCoins      int64

	// RandomSeed makes elimination draws reproducible when non-zero
	RandomSeed uint64

	// Logging
	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// NewTestConfig returns a configuration with defaults suitable for tests
func NewTestConfig() *Config {
	cfg := defaults()
	cfg.Environment = "test"
	cfg.StoreBackend = StoreBackendMemory
	cfg.AutoStartDelay = time.Minute
	cfg.EliminationTick = time.Second
	cfg.RandomSeed = 1
	return cfg
}

func defaults() *Config {
	return &Config{
		StoreBackend:      StoreBackendPostgres,
		HTTPAddr:          ":8080",
		MinQuorum:         3,
		AutoStartDelay:    3 * time.Minute,
		EliminationTick:   5 * time.Second,
		SingleActiveWheel: true,
		PayoutMode:        PayoutModeFixed,
		FixedPayout:       100,
		WinnerPoolPercent: 70,
		AdminPoolPercent:  20,
		AppPoolPercent:    10,
		StartingBalance:   1000,
		AdminUsername:     "admin",
		AdminCoins:        100000,
		LogLevel:          "info",
	}
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	config := defaults()

	// Database
	config.DatabaseURL = os.Getenv("DATABASE_URL")
	config.DatabaseName = os.Getenv("DATABASE_NAME")
	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		config.StoreBackend = strings.ToLower(backend)
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		config.HTTPAddr = addr
	}
	config.NATSServers = os.Getenv("NATS_SERVERS")
	config.DiscordToken = os.Getenv("DISCORD_TOKEN")
	config.DiscordChannelID = os.Getenv("DISCORD_CHANNEL_ID")
	config.Environment = os.Getenv("ENVIRONMENT")
	config.AdminUsername = envString("ADMIN_USERNAME", config.AdminUsername)
	config.LogLevel = envString("LOG_LEVEL", config.LogLevel)
	config.PayoutMode = strings.ToLower(envString("PAYOUT_MODE", config.PayoutMode))

	// Override defaults if environment variables are set
	config.MinQuorum = envInt("MIN_QUORUM", config.MinQuorum)
	config.AutoStartDelay = envDuration("AUTO_START_DELAY", config.AutoStartDelay)
	config.EliminationTick = envDuration("ELIMINATION_TICK", config.EliminationTick)
	config.FixedPayout = envInt64("FIXED_PAYOUT", config.FixedPayout)
	config.WinnerPoolPercent = envInt64("WINNER_POOL_PERCENT", config.WinnerPoolPercent)
	config.AdminPoolPercent = envInt64("ADMIN_POOL_PERCENT", config.AdminPoolPercent)
	config.AppPoolPercent = envInt64("APP_POOL_PERCENT", config.AppPoolPercent)
	config.StartingBalance = envInt64("STARTING_BALANCE", config.StartingBalance)
	config.AdminCoins = envInt64("ADMIN_COINS", config.AdminCoins)
	if single := os.Getenv("SINGLE_ACTIVE_WHEEL"); single != "" {
		if parsed, err := strconv.ParseBool(single); err == nil {
			config.SingleActiveWheel = parsed
		}
	}
	if seed := os.Getenv("RANDOM_SEED"); seed != "" {
		if parsed, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.RandomSeed = parsed
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.StoreBackend != StoreBackendPostgres && c.StoreBackend != StoreBackendMemory {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBackendPostgres, StoreBackendMemory, c.StoreBackend)
	}
	if c.StoreBackend == StoreBackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MinQuorum < 2 {
		return fmt.Errorf("MIN_QUORUM must be at least 2, got %d", c.MinQuorum)
	}
	if c.AutoStartDelay <= 0 || c.EliminationTick <= 0 {
		return fmt.Errorf("AUTO_START_DELAY and ELIMINATION_TICK must be positive")
	}
	switch c.PayoutMode {
	case PayoutModeFixed:
		if c.FixedPayout < 0 {
			return fmt.Errorf("FIXED_PAYOUT must not be negative")
		}
	case PayoutModePool:
		if c.WinnerPoolPercent < 0 || c.AdminPoolPercent < 0 || c.AppPoolPercent < 0 {
			return fmt.Errorf("pool percentages must not be negative")
		}
		if total := c.WinnerPoolPercent + c.AdminPoolPercent + c.AppPoolPercent; total != 100 {
			return fmt.Errorf("pool percentages must sum to 100, got %d", total)
		}
	default:
		return fmt.Errorf("PAYOUT_MODE must be %q or %q, got %q", PayoutModeFixed, PayoutModePool, c.PayoutMode)
	}
	if c.DiscordToken != "" && c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.WithFields(log.Fields{"key": key, "value": v}).Warn("Ignoring invalid integer setting")
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
		log.WithFields(log.Fields{"key": key, "value": v}).Warn("Ignoring invalid integer setting")
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "3m") or a bare number of seconds
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.WithFields(log.Fields{"key": key, "value": v}).Warn("Ignoring invalid duration setting")
	return fallback
}
