package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"bookcatalog/internal/config"
	"bookcatalog/internal/storage/ch"
	"bookcatalog/migrations"
)

// sourceDir is where "create" writes new migration files
const sourceDir = "./migrations"

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	// The migrate command always targets ClickHouse
	os.Setenv("STORAGE_BACKEND", string(config.BackendClickHouse))
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db := clickhouse.OpenDB(ch.Options(
		cfg.ClickHouseHost,
		cfg.ClickHousePort,
		cfg.ClickHouseDatabase,
		cfg.ClickHouseUser,
		cfg.ClickHousePassword,
		cfg.ClickHouseUseTLS,
	))
	defer db.Close()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Connected to ClickHouse successfully")

	// Get command from arguments (default to "up")
	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	log.Printf("Running migrations: %s", command)
	if err := run(db, command, args); err != nil {
		log.Fatal(err)
	}
}

func run(db *sql.DB, command string, args []string) error {
	switch command {
	case "up":
		if err := migrations.Up(db); err != nil {
			return err
		}
		log.Println("Migrations completed successfully")
	case "down":
		if err := migrations.Down(db); err != nil {
			return err
		}
		log.Println("Rollback completed successfully")
	case "status":
		return migrations.Status(db)
	case "version":
		version, err := migrations.Version(db)
		if err != nil {
			return err
		}
		log.Printf("Current migration version: %d", version)
	case "create":
		if len(args) < 1 {
			log.Fatal("Usage: migrate create <migration_name>")
		}
		// New files go to the source tree, not the embedded copy
		goose.SetBaseFS(nil)
		if err := goose.Create(db, sourceDir, args[0], "sql"); err != nil {
			return err
		}
		log.Printf("Created migration: %s", args[0])
	default:
		log.Fatalf("Unknown command: %s. Available commands: up, down, status, version, create", command)
	}
	return nil
}
