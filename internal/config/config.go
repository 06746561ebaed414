// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for databases and the ledger file (always absolute)
	LedgerPath     string // Full path to the ledger JSON document
	Market         string // Exchange code for universe listing (KOSPI)
	TopN           int    // Number of top-ranked stocks carried into allocation
	LookbackDays   int    // Trailing window for risk and allocation, in calendar days
	InitialCapital decimal.Decimal
	Schedule       string // Cron expression for the daily cycle, with seconds field
	Timezone       string // IANA zone the schedule runs in
	LogLevel       string
	Port           int
	DevMode        bool
	BOKAPIKey      string // ECOS open API key; macro indicators are skipped when empty
	Regime         RegimeConfig
	Backup         BackupConfig
}

// RegimeConfig controls the market regime gate applied before buys.
type RegimeConfig struct {
	Enabled     bool
	IndexTicker string // Ticker whose closes proxy the broad market
	Period      int    // Moving average period in trading days
}

// BackupConfig holds S3-compatible object storage settings for ledger backups.
type BackupConfig struct {
	Enabled       bool
	Endpoint      string // Custom endpoint URL, empty for AWS S3 proper
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	RetentionDays int // 0 keeps backups forever
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("KRQUANT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	ledgerPath := getEnv("KRQUANT_LEDGER_PATH", "")
	if ledgerPath == "" {
		ledgerPath = filepath.Join(absDataDir, "ledger.json")
	}

	initialCapital, err := getEnvAsDecimal("KRQUANT_INITIAL_CAPITAL", decimal.NewFromInt(10_000_000))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LedgerPath:     ledgerPath,
		Market:         getEnv("KRQUANT_MARKET", "KOSPI"),
		TopN:           getEnvAsInt("KRQUANT_TOP_N", 5),
		LookbackDays:   getEnvAsInt("KRQUANT_LOOKBACK_DAYS", 90),
		InitialCapital: initialCapital,
		// 09:05 local time on weekdays, shortly after the KRX open
		Schedule:  getEnv("KRQUANT_SCHEDULE", "0 5 9 * * MON-FRI"),
		Timezone:  getEnv("KRQUANT_TIMEZONE", "Asia/Seoul"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Port:      getEnvAsInt("KRQUANT_PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		BOKAPIKey: getEnv("BOK_API_KEY", ""),
		Regime: RegimeConfig{
			Enabled:     getEnvAsBool("KRQUANT_REGIME_ENABLED", true),
			IndexTicker: getEnv("KRQUANT_REGIME_INDEX", "069500"), // KODEX 200 ETF
			Period:      getEnvAsInt("KRQUANT_REGIME_PERIOD", 200),
		},
		Backup: BackupConfig{
			Enabled:       getEnvAsBool("KRQUANT_BACKUP_ENABLED", false),
			Endpoint:      getEnv("KRQUANT_BACKUP_ENDPOINT", ""),
			Region:        getEnv("KRQUANT_BACKUP_REGION", "auto"),
			Bucket:        getEnv("KRQUANT_BACKUP_BUCKET", ""),
			AccessKey:     getEnv("KRQUANT_BACKUP_ACCESS_KEY", ""),
			SecretKey:     getEnv("KRQUANT_BACKUP_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("KRQUANT_BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("top N must be positive, got %d", c.TopN)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	if c.InitialCapital.IsNegative() {
		return fmt.Errorf("initial capital cannot be negative, got %s", c.InitialCapital)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup enabled but no bucket configured")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal in %s: %w", key, err)
	}
	return d, nil
}
