// Package config provides configuration management functionality.
//
// Configuration is loaded from environment variables (.env file via godotenv)
// with sensible defaults. Unlike credentials-via-settings-UI systems, every
// value here is fixed at process start: this engine has no settings database.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration, one sub-section per component.
type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	DevMode  bool

	Exchange ExchangeConfig
	Hedging  HedgingConfig
	Funding  FundingConfig
	Quotes   QuotesConfig
	Fees     FeesConfig
	Pubsub   PubsubConfig
	Backup   BackupConfig
	Galoy    GaloyConfig
}

// ExchangeConfig holds okex credentials and mode.
type ExchangeConfig struct {
	APIKey     string
	Passphrase string
	SecretKey  string
	Simulated  bool
}

// HedgingConfig holds the thresholds consumed by OkexHedgeAdjustment.
type HedgingConfig struct {
	MinLiabilityCents  int64
	LowBoundRatio      float64
	LowSafeboundRatio  float64
	HighBoundRatio     float64
	HighSafeboundRatio float64
}

// FundingConfig holds the thresholds consumed by OkexFundingAdjustment.
type FundingConfig struct {
	MinLiabilityCents int64
	MinTransferCents  int64
	MinFundingBtc     float64
	LowBoundLev       float64
	LowSafeboundLev   float64
	HighBoundLev      float64
	HighSafeboundLev  float64
	HighBufferPct     float64
	PollFrequencySecs int
}

// QuotesConfig holds quote engine configuration.
type QuotesConfig struct {
	ExpirationIntervalSecs int
}

// FeesConfig holds the fee calculator rates.
type FeesConfig struct {
	BaseFeeRate      float64
	ImmediateFeeRate float64
	DelayedFeeRate   float64
}

// PubsubConfig holds in-process pub/sub tuning.
type PubsubConfig struct {
	Host string
}

// BackupConfig holds the R2/S3-compatible bucket nightly ledger and quote
// database snapshots are uploaded to. Enabled by BACKUP_ENABLED; Validate
// then requires the endpoint, bucket and both credentials.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
	CronSchedule    string
}

// GaloyConfig points the transaction poller at the external wallet-ledger
// system whose user trades this engine mirrors. Enabled by GALOY_ENABLED;
// Validate then requires Endpoint.
type GaloyConfig struct {
	Enabled      bool
	Endpoint     string
	APIKey       string
	CronSchedule string
}

// Load reads configuration from environment variables, applying the
// default given below wherever a variable is unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:  getEnv("STABLESATS_DATA_DIR", "./data"),
		Port:     getEnvAsInt("RPC_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Exchange: ExchangeConfig{
			APIKey:     getEnv("OKEX_API_KEY", ""),
			Passphrase: getEnv("OKEX_PASSPHRASE", ""),
			SecretKey:  getEnv("OKEX_SECRET_KEY", ""),
			Simulated:  getEnvAsBool("OKEX_SIMULATED", true),
		},
		Hedging: HedgingConfig{
			MinLiabilityCents:  getEnvAsInt64("HEDGING_MIN_LIABILITY_CENTS", 5_000),
			LowBoundRatio:      getEnvAsFloat("HEDGING_LOW_BOUND_RATIO", 0.95),
			LowSafeboundRatio:  getEnvAsFloat("HEDGING_LOW_SAFEBOUND_RATIO", 0.98),
			HighBoundRatio:     getEnvAsFloat("HEDGING_HIGH_BOUND_RATIO", 1.00),
			HighSafeboundRatio: getEnvAsFloat("HEDGING_HIGH_SAFEBOUND_RATIO", 0.99),
		},
		Funding: FundingConfig{
			MinLiabilityCents: getEnvAsInt64("FUNDING_MIN_LIABILITY_CENTS", 5_000),
			MinTransferCents:  getEnvAsInt64("FUNDING_MIN_TRANSFER_CENTS", 10_000),
			MinFundingBtc:     getEnvAsFloat("FUNDING_MIN_FUNDING_BTC", 0.01),
			LowBoundLev:       getEnvAsFloat("FUNDING_LOW_BOUND_LEV", 0.05),
			LowSafeboundLev:   getEnvAsFloat("FUNDING_LOW_SAFEBOUND_LEV", 0.04),
			HighBoundLev:      getEnvAsFloat("FUNDING_HIGH_BOUND_LEV", 0.95),
			HighSafeboundLev:  getEnvAsFloat("FUNDING_HIGH_SAFEBOUND_LEV", 0.90),
			HighBufferPct:     getEnvAsFloat("FUNDING_HIGH_BUFFER_PCT", 0.9),
			PollFrequencySecs: getEnvAsInt("FUNDING_POLL_FREQUENCY_SECS", 30),
		},
		Quotes: QuotesConfig{
			ExpirationIntervalSecs: getEnvAsInt("QUOTES_EXPIRATION_INTERVAL_SECS", 30),
		},
		Fees: FeesConfig{
			BaseFeeRate:      getEnvAsFloat("FEES_BASE_RATE", 0.001),
			ImmediateFeeRate: getEnvAsFloat("FEES_IMMEDIATE_RATE", 0.01),
			DelayedFeeRate:   getEnvAsFloat("FEES_DELAYED_RATE", 0.1),
		},
		Pubsub: PubsubConfig{
			Host: getEnv("PUBSUB_HOST", "127.0.0.1"),
		},
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Endpoint:        getEnv("BACKUP_R2_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_R2_BUCKET", ""),
			AccessKeyID:     getEnv("BACKUP_R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_R2_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			CronSchedule:    getEnv("BACKUP_CRON_SCHEDULE", "0 0 3 * * *"),
		},
		Galoy: GaloyConfig{
			Enabled:      getEnvAsBool("GALOY_ENABLED", false),
			Endpoint:     getEnv("GALOY_ENDPOINT", ""),
			APIKey:       getEnv("GALOY_API_KEY", ""),
			CronSchedule: getEnv("GALOY_CRON_SCHEDULE", "30 * * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before the engine starts trading.
func (c *Config) Validate() error {
	if !c.Exchange.Simulated {
		if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" || c.Exchange.Passphrase == "" {
			return fmt.Errorf("exchange credentials required when not running in simulated mode")
		}
	}
	if c.Hedging.HighBoundRatio <= c.Hedging.LowBoundRatio {
		return fmt.Errorf("hedging.high_bound_ratio must exceed hedging.low_bound_ratio")
	}
	if c.Backup.Enabled {
		if c.Backup.Endpoint == "" || c.Backup.Bucket == "" || c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup.endpoint, bucket, access_key_id and secret_access_key are required when backup is enabled")
		}
	}
	if c.Galoy.Enabled && c.Galoy.Endpoint == "" {
		return fmt.Errorf("galoy.endpoint is required when the galoy poller is enabled")
	}
	return nil
}

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
