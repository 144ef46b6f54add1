package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/billsync/internal/flagx"
)

var knownFlags = []string{"-d", "-r", "-s", "-i", "-a", "-l"}

// parseFlags overlays cfg with the flags in args. Arguments that belong to
// other flag sets or sub-commands are filtered out with flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("billsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "path of the local database")
	fs.StringVar(&cfg.RemoteDSN, "r", cfg.RemoteDSN, "remote document store DSN")
	fs.StringVar(&cfg.AuthSecret, "s", cfg.AuthSecret, "session token secret")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	autoSyncInterval := fs.Int("a", int(cfg.AutoSyncInterval.Seconds()), "auto-sync interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// only explicitly given intervals replace sub-second values from
	// earlier sources
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		case "a":
			cfg.AutoSyncInterval = time.Duration(*autoSyncInterval) * time.Second
		}
	})
	return nil
}
