package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/localstore"
)

// NewSQLiteStore opens the single-file store used when DB_DRIVER=sqlite.
func NewSQLiteStore(cfg *config.Config, log zerolog.Logger) (*localstore.Store, error) {
	store, err := localstore.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	log.Info().
		Str("path", cfg.SQLitePath).
		Msg("SQLite store opened")

	return store, nil
}
