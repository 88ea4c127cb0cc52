package database

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrUnknownMigration is returned for commands other than up, down, version
// and force.
var ErrUnknownMigration = errors.New("unknown migration command")

// RunMigration applies command (up, down, version, force <v>) with the
// migrations in dir against the PostgreSQL database at dbURL and returns a
// one-line summary.
func RunMigration(dir, dbURL, command string, args []string) (string, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", dir), dbURL)
	if err != nil {
		return "", fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("up: %w", err)
		}
		return "Migrated up successfully", nil
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("down: %w", err)
		}
		return "Migrated down successfully", nil
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return "", fmt.Errorf("version: %w", err)
		}
		return fmt.Sprintf("Version: %d, Dirty: %t", version, dirty), nil
	case "force":
		if len(args) < 1 {
			return "", errors.New("force requires version argument")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(v); err != nil {
			return "", fmt.Errorf("force: %w", err)
		}
		return fmt.Sprintf("Forced version to %d", v), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMigration, command)
	}
}
