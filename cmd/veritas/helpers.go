package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/config"
	"github.com/propflow/veritas/internal/oracle"
	"github.com/propflow/veritas/internal/storage"
)

func setupLoggerWithLevel(level slog.Level, format string) error {
	return common.SetupLogger(level, format)
}

// openStorage opens the configured SQLite database.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	} else {
		dbPath = config.ExpandPath(dbPath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// loadOracleConfigs reads the configured oracle providers. Config shape:
//
//	oracles:
//	  - provider: anthropic
//	    api_key: sk-...
//	    model: claude-3-5-haiku-20241022
//	    rate_limit: 60
//	  - provider: evalhttp
//	    base_url: http://localhost:8090
func loadOracleConfigs() ([]oracle.Config, error) {
	var raw []map[string]any
	if err := viper.UnmarshalKey("oracles", &raw); err != nil {
		return nil, fmt.Errorf("failed to parse oracle config: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no oracle providers configured", common.ErrMissingConfig)
	}

	cfgs := make([]oracle.Config, 0, len(raw))
	for i, entry := range raw {
		if asString(entry["provider"]) == "" {
			return nil, fmt.Errorf("%w: oracle entry %d has no provider", common.ErrInvalidConfig, i)
		}
		cfg := oracle.Config{
			Provider:  asString(entry["provider"]),
			Name:      asString(entry["name"]),
			APIKey:    asString(entry["api_key"]),
			Model:     asString(entry["model"]),
			BaseURL:   asString(entry["base_url"]),
			RateLimit: asInt(entry["rate_limit"]),
			MaxTokens: asInt(entry["max_tokens"]),
		}
		if seconds := asInt(entry["timeout_seconds"]); seconds > 0 {
			cfg.Timeout = time.Duration(seconds) * time.Second
		}
		cfgs = append(cfgs, cfg)
	}

	return cfgs, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
