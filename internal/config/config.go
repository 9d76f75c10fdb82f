package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic string   `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret     string   `mapstructure:"JWT_SECRET"`

	// Duplicate-detection tuning. The low/high boundaries are deliberately
	// configuration, not constants: candidates scoring below Low are
	// discarded, between Low and High they enter review as pending, at or
	// above High they are flagged high-confidence.
	DedupLowThreshold  float64 `mapstructure:"DEDUP_LOW_THRESHOLD"`
	DedupHighThreshold float64 `mapstructure:"DEDUP_HIGH_THRESHOLD"`
	DedupMaxCandidates int     `mapstructure:"DEDUP_MAX_CANDIDATES"`
	DedupScanPageSize  int     `mapstructure:"DEDUP_SCAN_PAGE_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEDUP_LOW_THRESHOLD", 0.6)
	v.SetDefault("DEDUP_HIGH_THRESHOLD", 0.8)
	v.SetDefault("DEDUP_MAX_CANDIDATES", 50)
	v.SetDefault("DEDUP_SCAN_PAGE_SIZE", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_CLINIC")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("DEDUP_LOW_THRESHOLD")
	v.BindEnv("DEDUP_HIGH_THRESHOLD")
	v.BindEnv("DEDUP_MAX_CANDIDATES")
	v.BindEnv("DEDUP_SCAN_PAGE_SIZE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The duplicate
// thresholds must form a valid band and production requires a JWT secret so
// reviewer identity on resolve calls is authenticated.
func (c *Config) Validate() error {
	if c.DedupLowThreshold <= 0 || c.DedupLowThreshold >= 1 {
		return fmt.Errorf("DEDUP_LOW_THRESHOLD must be in (0,1), got %v", c.DedupLowThreshold)
	}
	if c.DedupHighThreshold <= c.DedupLowThreshold || c.DedupHighThreshold > 1 {
		return fmt.Errorf("DEDUP_HIGH_THRESHOLD must be in (DEDUP_LOW_THRESHOLD,1], got %v", c.DedupHighThreshold)
	}
	if c.DedupMaxCandidates <= 0 {
		return fmt.Errorf("DEDUP_MAX_CANDIDATES must be positive, got %d", c.DedupMaxCandidates)
	}
	if c.DedupScanPageSize <= 0 {
		return fmt.Errorf("DEDUP_SCAN_PAGE_SIZE must be positive, got %d", c.DedupScanPageSize)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
