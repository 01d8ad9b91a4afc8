// backend/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type GCSConfig struct {
	Bucket       string `yaml:"bucket"`        // empty: fall back to LocalDir
	LocalDir     string `yaml:"local_dir"`     // dev/test object store root
	PathPrefix   string `yaml:"path_prefix"`   // default landing/restaurant_board
	ManualPrefix string `yaml:"manual_prefix"` // default manual/restaurant_board
	TTLDays      int    `yaml:"ttl_days"`      // landing artifact retention
}

type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"` // empty: fall back to StoresCSV
	Range         string `yaml:"range"`
	StoresCSV     string `yaml:"stores_csv"` // local CSV file fallback
}

type ScraperConfig struct {
	BaseURL            string `yaml:"base_url"`
	LoginURL           string `yaml:"login_url"`
	Headless           bool   `yaml:"headless"`
	StepTimeoutSec     int    `yaml:"step_timeout_sec"`
	DownloadTimeoutSec int    `yaml:"download_timeout_sec"`
	DownloadDir        string `yaml:"download_dir"`
}

func (c ScraperConfig) StepTimeout() time.Duration {
	if c.StepTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StepTimeoutSec) * time.Second
}

func (c ScraperConfig) DownloadTimeout() time.Duration {
	if c.DownloadTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

type ETLConfig struct {
	Vendor       string `yaml:"vendor"`
	DaysBack     int    `yaml:"days_back"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryDelayMs int    `yaml:"retry_delay_ms"`
	KeyStrategy  string `yaml:"key_strategy"` // auto | natural | composite
	StageTTLDays int    `yaml:"stage_ttl_days"`
}

func (c ETLConfig) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	GCS      GCSConfig      `yaml:"gcs"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	ETL      ETLConfig      `yaml:"etl"`
}

// Load reads the yaml config file, applies environment overrides for the
// secret-bearing fields and fills defaults. The returned struct is the only
// configuration surface: components receive it through constructors and no
// package reads ambient globals.
func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets and deployment identifiers come from the environment when set.
	applyEnv(&cfg.Database.Host, "DB_HOST")
	applyEnv(&cfg.Database.Port, "DB_PORT")
	applyEnv(&cfg.Database.User, "DB_USER")
	applyEnv(&cfg.Database.Password, "DB_PASSWORD")
	applyEnv(&cfg.Database.DBName, "DB_NAME")
	applyEnv(&cfg.GCS.Bucket, "GCS_BUCKET")
	applyEnv(&cfg.Sheets.SpreadsheetID, "STORES_SHEET_ID")

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.GCS.PathPrefix == "" {
		c.GCS.PathPrefix = "landing/restaurant_board"
	}
	if c.GCS.ManualPrefix == "" {
		c.GCS.ManualPrefix = "manual/restaurant_board"
	}
	if c.GCS.TTLDays <= 0 {
		c.GCS.TTLDays = 30
	}
	if c.GCS.LocalDir == "" {
		c.GCS.LocalDir = "./objectstore_data"
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = "Stores!A:I"
	}
	if c.ETL.Vendor == "" {
		c.ETL.Vendor = "restaurant_board"
	}
	if c.ETL.DaysBack <= 0 {
		c.ETL.DaysBack = 7
	}
	if c.ETL.MaxRetries <= 0 {
		c.ETL.MaxRetries = 3
	}
	if c.ETL.KeyStrategy == "" {
		c.ETL.KeyStrategy = "auto"
	}
	if c.ETL.StageTTLDays <= 0 {
		c.ETL.StageTTLDays = 30
	}
}

func (c *Config) validate() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user and dbname are required")
	}
	if c.Scraper.LoginURL == "" {
		return fmt.Errorf("scraper login_url is required")
	}
	switch c.ETL.KeyStrategy {
	case "auto", "natural", "composite":
	default:
		return fmt.Errorf("etl key_strategy must be auto, natural or composite, got %q", c.ETL.KeyStrategy)
	}
	return nil
}
