package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Provider    ProviderConfig            `json:"provider"`
}

type BasicConfig struct {
	ServerAddress        string `json:"server_address"`
	SessionSweepInterval int    `json:"session_sweep_interval_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProviderConfig points at the hosted conversational-AI API.
type ProviderConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	BotID          string `json:"bot_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider.base_url must be configured")
	}
	if cfg.Provider.BotID == "" {
		return nil, fmt.Errorf("provider.bot_id must be configured")
	}

	for name, db := range cfg.Databases {
		if name == "mysql" || db.DSN == "" {
			continue
		}
		if !filepath.IsAbs(db.DSN) && !strings.HasPrefix(db.DSN, ":") && !strings.HasPrefix(db.DSN, "file:") {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}
