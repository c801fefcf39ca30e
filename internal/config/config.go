package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/core-coin/go-core/v2/common"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Development bool
	// InstanceID identifies this process when it holds cron locks
	InstanceID string
	// API configuration
	APIPort int

	// Database configuration
	DBDriver         string
	SQLitePath       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Blockchain configuration
	BlockchainServiceURL  string
	HandleRegistryAddress string
	NetworkID             *big.Int
	// AmountDecimals is how many on-chain decimals are dropped to get minor currency units
	AmountDecimals int

	// Minting service configuration
	MinterURL   string
	MinterToken string
	BackupDir   string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
	AlertEmail   string

	// Telegram alert configuration
	TelegramBotToken    string
	TelegramAlertChatID string

	// Scheduler configuration
	SchedulerEnabled bool
	CronReconcile    string
	CronMint         string
	CronConfirm      string
	CronState        string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:           getEnvAsBool("DEVELOPMENT", false),
		InstanceID:            getEnv("INSTANCE_ID", uuid.NewString()),
		APIPort:               getEnvAsInt("API_PORT", 6533),
		DBDriver:              getEnv("DB_DRIVER", DriverPostgres),
		SQLitePath:            getEnv("SQLITE_PATH", "handlemint.db"),
		PostgresUser:          getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:      getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:          getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:          getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:            getEnv("POSTGRES_DB", "handlemint"),
		BlockchainServiceURL:  getEnv("BLOCKCHAIN_SERVICE_URL", "ws://localhost:8546"),
		HandleRegistryAddress: getEnv("HANDLE_REGISTRY_ADDRESS", ""),
		NetworkID:             getEnvAsBigInt("NETWORK_ID", big.NewInt(1)), // Default to Mainnet ID
		AmountDecimals:        getEnvAsInt("AMOUNT_DECIMALS", 12),
		MinterURL:             getEnv("MINTER_URL", "http://localhost:7070"),
		MinterToken:           getEnv("MINTER_TOKEN", ""),
		BackupDir:             getEnv("BACKUP_DIR", "backups"),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPSender:            getEnv("SMTP_SENDER", ""),
		AlertEmail:            getEnv("ALERT_EMAIL", ""),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAlertChatID:   getEnv("TELEGRAM_ALERT_CHAT_ID", ""),
		SchedulerEnabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
		CronReconcile:         getEnv("CRON_RECONCILE", "@every 30s"),
		CronMint:              getEnv("CRON_MINT", "@every 45s"),
		CronConfirm:           getEnv("CRON_CONFIRM", "@every 60s"),
		CronState:             getEnv("CRON_STATE", "@every 60s"),
	}

	// Set default network ID before validation (required for address validation)
	common.DefaultNetworkID = common.NetworkID(cfg.NetworkID.Int64())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.BlockchainServiceURL == "" {
		return fmt.Errorf("BLOCKCHAIN_SERVICE_URL is required")
	}

	if c.HandleRegistryAddress == "" {
		return fmt.Errorf("HANDLE_REGISTRY_ADDRESS is required")
	}
	if _, err := common.HexToAddress(c.HandleRegistryAddress); err != nil {
		return fmt.Errorf("invalid HANDLE_REGISTRY_ADDRESS format: %w", err)
	}

	if c.MinterURL == "" {
		return fmt.Errorf("MINTER_URL is required")
	}

	if c.AmountDecimals < 0 || c.AmountDecimals > 18 {
		return fmt.Errorf("AMOUNT_DECIMALS must be between 0 and 18, got %d", c.AmountDecimals)
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBigInt(name string, defaultValue *big.Int) *big.Int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, ok := new(big.Int).SetString(valueStr, 10); ok {
			return value
		}
	}
	return defaultValue
}
