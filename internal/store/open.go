package store

import (
	"fmt"
	"os"
	"path/filepath"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/database"
)

// Open returns the store selected by cfg.Driver.
func Open(cfg config.Database) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := database.NewDatabase(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil
	case config.DriverFile:
		return NewFileStore(cfg.Dir), nil
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
