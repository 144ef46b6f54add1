package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvDBPath              = "BILLSYNC_DB_PATH"
	EnvRemoteDSN           = "BILLSYNC_REMOTE_DSN"
	EnvAuthSecret          = "BILLSYNC_AUTH_SECRET"
	EnvOnlineCheckInterval = "BILLSYNC_ONLINE_CHECK_INTERVAL"
	EnvAutoSyncInterval    = "BILLSYNC_AUTO_SYNC_INTERVAL"
	EnvRetryAttempts       = "BILLSYNC_RETRY_ATTEMPTS"
	EnvRetryBaseDelay      = "BILLSYNC_RETRY_BASE_DELAY"
	EnvLogLevel            = "BILLSYNC_LOG_LEVEL"
	EnvLogFile             = "BILLSYNC_LOG_FILE"
)

// loadDotEnv copies the variables of path into the process environment
// without overriding ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %s: %w", path, err)
}

// parseEnv overlays cfg with the BILLSYNC_* variables that are set.
// Durations accept Go duration strings ("90s", "1m").
func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str(EnvDBPath, &cfg.DBPath)
	str(EnvRemoteDSN, &cfg.RemoteDSN)
	str(EnvAuthSecret, &cfg.AuthSecret)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFile, &cfg.LogFile)

	if err := dur(EnvOnlineCheckInterval, &cfg.OnlineCheckInterval); err != nil {
		return err
	}
	if err := dur(EnvAutoSyncInterval, &cfg.AutoSyncInterval); err != nil {
		return err
	}
	if err := dur(EnvRetryBaseDelay, &cfg.RetryBaseDelay); err != nil {
		return err
	}
	if v, ok := lookup(EnvRetryAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRetryAttempts, err)
		}
		cfg.RetryAttempts = n
	}
	return nil
}
