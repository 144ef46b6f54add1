package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/billsync/internal/flagx"
	"github.com/dmitrijs2005/billsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell absent keys from zero values.
type JsonConfig struct {
	DBPath              *string         `json:"db_path"`
	RemoteDSN           *string         `json:"remote_dsn"`
	AuthSecret          *string         `json:"auth_secret"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	AutoSyncInterval    *timex.Duration `json:"auto_sync_interval"`
	RetryAttempts       *int            `json:"retry_attempts"`
	RetryBaseDelay      *timex.Duration `json:"retry_base_delay"`
	LogLevel            *string         `json:"log_level"`
	LogFile             *string         `json:"log_file"`
}

// parseJson overlays cfg with the JSON file named by -c/-config in args or
// by BILLSYNC_CONFIG. Without either, nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFile(args)
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("config: parse %s: %w", jsonConfigFile, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc JsonConfig) apply(cfg *Config) {
	set(&cfg.DBPath, jc.DBPath)
	set(&cfg.RemoteDSN, jc.RemoteDSN)
	set(&cfg.AuthSecret, jc.AuthSecret)
	set(&cfg.RetryAttempts, jc.RetryAttempts)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogFile, jc.LogFile)

	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.AutoSyncInterval != nil {
		cfg.AutoSyncInterval = jc.AutoSyncInterval.Duration
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
