package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jojodicus/lisho/internal/config"
	"github.com/Jojodicus/lisho/internal/slogutil"
	"github.com/Jojodicus/lisho/internal/store"
)

const version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lisho",
	Short: "A tiny self-hosted link shortener",
	Long: `lisho serves short links over a deliberately small, hand-rolled
HTTP/1.1 subset: one GET per connection, a redirect or an error page back.
Links live in a flat file, a SQLite database or a Redis hash, and edits are
picked up by the running server without a restart.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ./lisho.yaml, defaults apply if absent)")
}

// loadConfig resolves the effective configuration for every subcommand.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, slogutil.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level), nil
}

// openEditor opens the write side of the configured store. The file
// backend is opened lazily so that editing a not-yet-existing file works;
// the first Put creates it.
func openEditor(cfg *config.Config, log *slog.Logger) (store.Editor, func(), error) {
	switch cfg.Store.Backend {
	case "file":
		fs, err := store.NewFile(cfg.Store.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case "sqlite":
		db, err := store.OpenSQLite(cfg.Store.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "redis":
		rs, err := store.OpenRedis(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, log)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	// unreachable: config validation rejects unknown backends
	return nil, nil, &config.ConfigError{Field: "store.backend", Message: "unknown backend"}
}
