// Runs the GORM migrations against the configured database
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"log"

	"github.com/sahilchouksey/study-artifacts/config"
	"github.com/sahilchouksey/study-artifacts/database"
)

func main() {
	log.Println("=== GORM Migration ===")

	// Load environment variables
	if err := config.LoadENV(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	env, err := config.Get()
	if err != nil {
		log.Fatal("Failed to read environment:", err)
	}

	// Initialize GORM connection
	store, err := database.StartGORM(env)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer store.Close()

	// Run migrations
	if err := store.Init(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Health check
	if err := store.HealthCheck(context.Background()); err != nil {
		log.Fatal("Database health check failed:", err)
	}

	log.Println("✅ All migrations completed successfully!")
	log.Println("\nTables:")
	log.Println("  - processing_sessions")
	log.Println("  - session_documents")
	log.Println("  - stage_outcomes")
	log.Println("  - cron_job_logs")
}
