// Prints a processing session's documents and stage outcomes
// Usage: go run ./cmd/sessiondetail <session-id>
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/session"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: sessiondetail <session-id>")
	}
	sessionID := os.Args[1]

	_ = godotenv.Load()

	// Connect to database
	db, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sess, err := session.NewGormStore(db).GetSession(context.Background(), sessionID)
	if err != nil {
		log.Fatalf("Failed to find session %s: %v", sessionID, err)
	}
	report := session.BuildReport(sess)

	fmt.Println("══════════════════════════════════════════════════════════════")
	fmt.Printf("  SESSION %s\n", sess.ID)
	fmt.Println("══════════════════════════════════════════════════════════════")

	fmt.Printf("\n📋 SESSION METADATA:\n")
	fmt.Printf("   Mode:    %s\n", sess.ProcessingMode)
	fmt.Printf("   Status:  %s\n", sess.Status)
	fmt.Printf("   User ID: %d\n", sess.UserID)

	fmt.Printf("\n⏱️  TIMING:\n")
	fmt.Printf("   Created At:   %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05.000"))
	if sess.StartedAt != nil {
		fmt.Printf("   Started At:   %s\n", sess.StartedAt.Format("2006-01-02 15:04:05.000"))
		fmt.Printf("   Queue Time:   %s\n", sess.StartedAt.Sub(sess.CreatedAt))
	}
	if sess.CompletedAt != nil {
		fmt.Printf("   Completed At: %s\n", sess.CompletedAt.Format("2006-01-02 15:04:05.000"))
		if sess.StartedAt != nil {
			fmt.Printf("   Processing:   %s\n", sess.CompletedAt.Sub(*sess.StartedAt))
		}
	}

	fmt.Printf("\n📄 DOCUMENTS (%d):\n", len(report.Documents))
	for i, doc := range report.Documents {
		fmt.Printf("   %d. %s %-30s %-6s %3d pages  %s\n", i+1, extractionIcon(doc.Status),
			truncate(doc.Filename, 30), doc.Strategy, doc.PageCount, doc.Status)
		if doc.Error != "" {
			fmt.Printf("      ⚠️  Error: %s\n", doc.Error)
		}
		for _, w := range doc.Warnings {
			fmt.Printf("      ⚠️  Pages %d-%d: %s\n", w.StartPage, w.EndPage, truncate(w.Error, 60))
		}
	}

	fmt.Printf("\n📦 STAGES (%d):\n", len(report.Stages))
	for _, stage := range report.Stages {
		fmt.Printf("   %s %-13s %-10s %d items\n", stageIcon(stage.State), stage.Stage, stage.State, stage.ArtifactCount)
		if stage.Error != nil {
			fmt.Printf("      ⚠️  %s: %s\n", stage.Error.Type, truncate(stage.Error.Message, 60))
		}
	}

	fmt.Println("\n══════════════════════════════════════════════════════════════")
	switch sess.Status {
	case model.SessionStatusCompleted:
		fmt.Println("  ✅ SESSION COMPLETED SUCCESSFULLY")
	case model.SessionStatusPartial:
		fmt.Println("  ⚠️  SESSION PARTIALLY COMPLETED")
	case model.SessionStatusFailed:
		fmt.Println("  ❌ SESSION FAILED")
	default:
		fmt.Printf("  ⏳ SESSION STATUS: %s\n", sess.Status)
	}
	fmt.Println("══════════════════════════════════════════════════════════════")
}

func extractionIcon(status model.ExtractionStatus) string {
	switch status {
	case model.ExtractionStatusOK:
		return "✅"
	case model.ExtractionStatusDegraded:
		return "⚠️"
	case model.ExtractionStatusFailed:
		return "❌"
	}
	return "⏳"
}

func stageIcon(state model.OutcomeState) string {
	switch state {
	case model.OutcomeSucceeded:
		return "✅"
	case model.OutcomeFailed:
		return "❌"
	case model.OutcomeSkipped:
		return "⏭️"
	}
	return "🛑"
}

func connectDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER_NAME", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "study_artifacts"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSL_MODE", "disable"),
	)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
