package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends selectable via config.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr     string   `yaml:"http_addr"`
	StoreBackend string   `yaml:"store_backend"` // memory | postgres | sqlite
	PostgresDSN  string   `yaml:"postgres_dsn"`
	SQLitePath   string   `yaml:"sqlite_path"`
	KafkaBrokers []string `yaml:"kafka_brokers"` // empty disables publishing
	PageSize     int      `yaml:"page_size"`
}

// Load builds the configuration in three layers: defaults, an optional YAML
// file (CONFIG_FILE), then environment variables. A .env file is read first
// if present so local runs need no exported variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     ":8080",
		StoreBackend: BackendMemory,
		SQLitePath:   "ledger.db",
		PageSize:     10,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PAGE_SIZE %q", v)
		}
		cfg.PageSize = n
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == BackendPostgres && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres backend requires POSTGRES_DSN")
	}
	return cfg, nil
}
