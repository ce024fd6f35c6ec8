// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for databases (always absolute)
	MarketDataURL string // Snapshot/history provider base URL
	StreamURL     string // Optional websocket price stream URL (empty = disabled)
	LogLevel      string
	Port          int
	DevMode       bool
	Strategy      *StrategyConfig
	Backup        *BackupConfig
}

// StrategyConfig holds the decision engine parameters.
// Defaults mirror the production 6-month cross-sectional momentum setup.
type StrategyConfig struct {
	LookbackDays        int     // Momentum lookback window (126 = 6 months)
	NLong               int     // Number of long positions
	NShort              int     // Number of short positions
	RiskAdjusted        bool    // Divide momentum by realized volatility
	VolatilityLookback  int     // Trailing window for realized volatility
	Construction        string  // equal_weight, confidence_weighted, risk_parity
	MaxPositionWeight   float64 // Per-position weight cap
	MaxGrossExposure    float64 // Gross exposure cap (2.0 = 200%)
	MaxDrawdownPct      float64 // Kill switch: drawdown from high-water mark
	DailyLossLimit      float64 // Kill switch: loss from daily starting equity
	PositionStopLoss    float64 // Hard stop per position
	TrailingStopPct     float64 // Trailing stop from position peak value
	SectorExposureCap   float64 // Max summed |weight| per sector (0 = disabled)
	VolScalingEnabled   bool    // Scale exposure by the volatility proxy
	VixHighThreshold    float64 // Proxy level for 50% exposure
	VixExtremeThreshold float64 // Proxy level for 25% exposure

	// Universe screening
	UniverseSize    int
	MinPrice        float64
	MinDollarVolume float64
	MinMarketCap    float64
}

// BackupConfig holds S3 state backup configuration
type BackupConfig struct {
	Enabled  bool
	Bucket   string
	Prefix   string
	Region   string
	Keep     int    // Number of backups to retain
	Schedule string // Cron spec for the backup job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LODESTAR_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("LODESTAR_PORT", 8010),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		MarketDataURL: getEnv("MARKET_DATA_URL", "http://localhost:9010"),
		StreamURL:     getEnv("MARKET_DATA_STREAM_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Strategy:      loadStrategyConfig(),
		Backup:        loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is internally consistent
func (c *Config) Validate() error {
	s := c.Strategy
	if s.LookbackDays < 2 {
		return fmt.Errorf("lookback_days must be at least 2, got %d", s.LookbackDays)
	}
	if s.NLong < 0 || s.NShort < 0 {
		return fmt.Errorf("n_long and n_short must be non-negative")
	}
	if s.MaxPositionWeight <= 0 || s.MaxPositionWeight > 1 {
		return fmt.Errorf("max_position_weight must be in (0, 1], got %f", s.MaxPositionWeight)
	}
	if s.MaxGrossExposure <= 0 {
		return fmt.Errorf("max_gross_exposure must be positive, got %f", s.MaxGrossExposure)
	}
	switch s.Construction {
	case "equal_weight", "confidence_weighted", "risk_parity":
	default:
		return fmt.Errorf("unknown construction strategy %q", s.Construction)
	}
	return nil
}

func loadStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		LookbackDays:        getEnvAsInt("LOOKBACK_DAYS", 126),
		NLong:               getEnvAsInt("N_LONG", 5),
		NShort:              getEnvAsInt("N_SHORT", 5),
		RiskAdjusted:        getEnvAsBool("RISK_ADJUSTED_MOMENTUM", false),
		VolatilityLookback:  getEnvAsInt("VOLATILITY_LOOKBACK", 21),
		Construction:        getEnv("CONSTRUCTION_STRATEGY", "equal_weight"),
		MaxPositionWeight:   getEnvAsFloat("MAX_POSITION_WEIGHT", 0.12),
		MaxGrossExposure:    getEnvAsFloat("MAX_GROSS_EXPOSURE", 2.0),
		MaxDrawdownPct:      getEnvAsFloat("MAX_DRAWDOWN_PCT", 0.10),
		DailyLossLimit:      getEnvAsFloat("DAILY_LOSS_LIMIT", 0.03),
		PositionStopLoss:    getEnvAsFloat("POSITION_STOP_LOSS", 0.05),
		TrailingStopPct:     getEnvAsFloat("TRAILING_STOP_PCT", 0.08),
		SectorExposureCap:   getEnvAsFloat("SECTOR_EXPOSURE_CAP", 0.30),
		VolScalingEnabled:   getEnvAsBool("VOL_SCALING_ENABLED", false),
		VixHighThreshold:    getEnvAsFloat("VIX_HIGH_THRESHOLD", 30.0),
		VixExtremeThreshold: getEnvAsFloat("VIX_EXTREME_THRESHOLD", 40.0),
		UniverseSize:        getEnvAsInt("UNIVERSE_SIZE", 500),
		MinPrice:            getEnvAsFloat("MIN_PRICE", 5.0),
		MinDollarVolume:     getEnvAsFloat("MIN_DOLLAR_VOLUME", 1_000_000),
		MinMarketCap:        getEnvAsFloat("MIN_MARKET_CAP", 500_000_000),
	}
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:  getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:   getEnv("BACKUP_S3_BUCKET", ""),
		Prefix:   getEnv("BACKUP_S3_PREFIX", "lodestar"),
		Region:   getEnv("BACKUP_S3_REGION", "us-east-1"),
		Keep:     getEnvAsInt("BACKUP_KEEP", 7),
		Schedule: getEnv("BACKUP_SCHEDULE", "0 0 22 * * *"),
	}
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
