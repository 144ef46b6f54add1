package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	args := []string{"-c", "ignored.json", "-d", "a.db", "-r", "postgres://flag", "-s", "k", "-a", "0", "-l", "warn", "sync"}
	require.NoError(t, parseFlags(&cfg, args))

	assert.Equal(t, "a.db", cfg.DBPath)
	assert.Equal(t, "postgres://flag", cfg.RemoteDSN)
	assert.Equal(t, "k", cfg.AuthSecret)
	assert.Zero(t, cfg.AutoSyncInterval)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestParseFlags_KeepsSubSecondIntervalsWhenAbsent(t *testing.T) {
	cfg := Config{OnlineCheckInterval: 500 * time.Millisecond, AutoSyncInterval: 1500 * time.Millisecond}

	require.NoError(t, parseFlags(&cfg, nil))

	assert.Equal(t, 500*time.Millisecond, cfg.OnlineCheckInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutoSyncInterval)
}

func TestParseFlags_BadValue(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	assert.Error(t, parseFlags(&cfg, []string{"-i", "often"}))
}
