package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/database"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Parse()

	// Load config
	cfg := config.Load()
	dbURL := cfg.DatabaseURL
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if cfg.DBDriver == config.DriverSQLite {
		log.Fatal("SQLite stores create their schema on open; migrations target PostgreSQL")
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	msg, err := database.RunMigration(migrationDir, dbURL, args[0], args[1:])
	if errors.Is(err, database.ErrUnknownMigration) {
		printUsage()
		return
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println(msg)
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
