package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	Storage   StorageConfig    `json:"storage"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Converter ConverterConfig  `json:"converter"`
	Ingest    IngestConfig     `json:"ingest"`
	Janitor   JanitorConfig    `json:"janitor"`
}

type DatabaseConfig struct {
	DSN                string `json:"dsn"`
	Host               string `json:"host"`
	Port               int    `json:"port"`
	User               string `json:"user"`
	Password           string `json:"password"`
	DBName             string `json:"db_name"`
	SSLMode            string `json:"ssl_mode"`
	StatementTimeoutMS int    `json:"statement_timeout_ms"`
}

// StorageConfig carries one config block per backend under Providers; only
// the resolved backend's block is decoded, by that backend's factory.
type StorageConfig struct {
	Provider            string                 `json:"provider"`
	Bucket              string                 `json:"bucket"`
	MaxClientAgeMinutes int                    `json:"max_client_age_minutes"`
	Providers           map[string]interface{} `json:"providers"`
}

type EmbeddingConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	Data            interface{} `json:"data"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLMinutes int         `json:"cache_ttl_minutes"`
}

type ConverterConfig struct {
	EngineURL      string `json:"engine_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type IngestConfig struct {
	BatchSize int `json:"batch_size"`
}

type JanitorConfig struct {
	Enable                  bool   `json:"enable"`
	CronSpec                string `json:"cron_spec"`
	MaxProcessingAgeMinutes int    `json:"max_processing_age_minutes"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Host == "" || cfg.Database.DBName == "" {
			return nil, fmt.Errorf("database.host and database.db_name are required")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
	}
	if cfg.Database.StatementTimeoutMS == 0 {
		cfg.Database.StatementTimeoutMS = 60000
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "files-bucket"
	}
	if cfg.Embedding.Provider == "" {
		return nil, fmt.Errorf("embedding.provider is required")
	}
	if cfg.Converter.EngineURL == "" {
		return nil, fmt.Errorf("converter.engine_url is required")
	}
	if cfg.Converter.TimeoutSeconds == 0 {
		cfg.Converter.TimeoutSeconds = 300
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 30
	}
	if cfg.Ingest.BatchSize > 100 {
		return nil, fmt.Errorf("ingest.batch_size must not exceed the embedding batch limit of 100")
	}
	if cfg.Janitor.CronSpec == "" {
		cfg.Janitor.CronSpec = "*/10 * * * *"
	}
	if cfg.Janitor.MaxProcessingAgeMinutes == 0 {
		cfg.Janitor.MaxProcessingAgeMinutes = 120
	}
	return &cfg, nil
}
