package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jojodicus/lisho/internal/config"
	"github.com/Jojodicus/lisho/internal/metrics"
	"github.com/Jojodicus/lisho/internal/server"
	"github.com/Jojodicus/lisho/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the link-shortener server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	st, closeStore, err := openServedStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer closeStore()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.SetLinks(st.Len())
	}

	srv, err := server.Serve(cfg.Listen, st, server.Options{
		ReadTimeout:         cfg.ReadTimeout,
		MaxRequestLineBytes: cfg.MaxRequestLineBytes,
		AllowClientCache:    cfg.AllowClientCache,
		Metrics:             m,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Listen, err)
	}
	defer srv.Close()

	logger.Info("lisho serving",
		"addr", cfg.Listen,
		"store", cfg.Store.Backend,
		"links", st.Len(),
		"metrics", cfg.Metrics.Enabled,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("lisho stopped")
	return nil
}

// openServedStore opens the read side the server runs on. Unlike the
// editor, every backend loads eagerly here: serving without a mapping is a
// startup failure, same as a port that will not bind.
func openServedStore(cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "file":
		fs, err := store.OpenFile(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.Watch {
			if err := fs.Watch(); err != nil {
				_ = fs.Close()
				return nil, nil, err
			}
			logger.Debug("watching store file", "path", cfg.Store.Path)
		}
		return fs, func() { _ = fs.Close() }, nil
	case "sqlite":
		db, err := store.OpenSQLite(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "redis":
		rs, err := store.OpenRedis(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, logger)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	return nil, nil, &config.ConfigError{Field: "store.backend", Message: "unknown backend"}
}
