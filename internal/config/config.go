package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for the billsync CLI.
type Config struct {
	DBPath     string
	RemoteDSN  string
	AuthSecret string

	OnlineCheckInterval time.Duration
	AutoSyncInterval    time.Duration

	// RetryAttempts counts the first try of a background sync.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	LogLevel string
	LogFile  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DBPath = "billsync.db"
	c.RemoteDSN = ""
	c.AuthSecret = "billsync-dev-secret"
	c.OnlineCheckInterval = 3 * time.Second
	c.AutoSyncInterval = 60 * time.Second
	c.RetryAttempts = 3
	c.RetryBaseDelay = time.Second
	c.LogLevel = "info"
	c.LogFile = ""
}

// Load builds a Config from defaults, the environment, the JSON file and
// args, in that order.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("config: empty database path")
	case c.OnlineCheckInterval <= 0:
		return fmt.Errorf("config: online check interval must be positive, got %s", c.OnlineCheckInterval)
	case c.AutoSyncInterval < 0:
		return fmt.Errorf("config: negative auto-sync interval %s", c.AutoSyncInterval)
	case c.RetryAttempts < 1:
		return fmt.Errorf("config: retry attempts must be at least 1, got %d", c.RetryAttempts)
	case c.RetryBaseDelay <= 0:
		return fmt.Errorf("config: retry base delay must be positive, got %s", c.RetryBaseDelay)
	}
	return nil
}
