package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/database"
	"github.com/stemsi/wellcheck-backend/internal/logger"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/repository"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

var rootCmd = &cobra.Command{
	Use:          "wellctl",
	Short:        "Operate the WellCheck assessment backend",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to a SQLite store (overrides DB_DRIVER and SQLITE_PATH)")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
}

// studentAdmin is the write side of the student directory used for seeding.
type studentAdmin interface {
	service.StudentDirectory
	Create(ctx context.Context, s *model.Student) error
	AssignInstrument(ctx context.Context, studentID int, instrumentID uuid.UUID) error
	AssignToSchool(ctx context.Context, schoolID int, instrumentID uuid.UUID) (int64, error)
}

// backend bundles the stores of the configured driver.
type backend struct {
	instruments service.InstrumentStore
	students    studentAdmin
	submissions service.SubmissionStore
	close       func()
}

// loadConfig reads the environment and applies the --db override.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBDriver = config.DriverSQLite
		cfg.SQLitePath = p
	}
	return cfg
}

// cliLogger logs warnings and above to stderr.
func cliLogger() zerolog.Logger {
	return logger.New(os.Stderr, "warn", "pretty")
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := database.NewSQLiteStore(cfg, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			instruments: store.Instruments(),
			students:    store.Students(),
			submissions: store.Submissions(),
			close:       func() { _ = store.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			instruments: repository.NewInstrumentRepository(pool),
			students:    repository.NewStudentRepository(pool),
			submissions: repository.NewSubmissionRepository(pool),
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
