// Package config loads runtime configuration for the billsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory and BILLSYNC_* environment
//     variables (see parseEnv).
//  3. Optional JSON file selected with -c / -config or BILLSYNC_CONFIG
//     (see parseJson).
//  4. Command-line flags (see parseFlags).
//
// Later sources override earlier ones; a source only overrides the values it
// actually sets.
//
// Supported flags
//
//	-d string   path of the local SQLite database
//	-r string   Postgres DSN of the remote document store ("" = in-memory)
//	-s string   secret used to validate session tokens
//	-i int      online status check interval (seconds)
//	-a int      auto-sync interval (seconds, 0 disables interval syncs)
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
// Intervals use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "db_path": "billsync.db",
//	  "remote_dsn": "postgres://billsync@localhost/billsync",
//	  "auth_secret": "change-me",
//	  "online_check_interval": "3s",
//	  "auto_sync_interval": "1m",
//	  "retry_attempts": 3,
//	  "retry_base_delay": "1s",
//	  "log_level": "info",
//	  "log_file": ""
//	}
package config
