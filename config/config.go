package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	GO_ENV string
	PORT   int
	// Database
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// Auth; tokens are issued by the account service
	JWT_SECRET string
	JWT_ISSUER string
	// Progress fan-out, optional
	REDIS_URL string
	// Document storage
	STORAGE_BACKEND      string
	LOCAL_STORAGE_DIR    string
	DO_SPACES_ACCESS_KEY string
	DO_SPACES_SECRET_KEY string
	DO_SPACES_BUCKET     string
	DO_SPACES_REGION     string
	DO_SPACES_ENDPOINT   string
	// Extraction and generation collaborators
	OCR_SERVICE_URL  string
	MODEL_ACCESS_KEY string
	INFERENCE_MODEL  string
}

func Get() (*EnviornmentVariable, error) {
	return &EnviornmentVariable{
		GO_ENV: os.Getenv("GO_ENV"),
		PORT:   envInt("PORT", 8080),

		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      envString("DB_HOST", "localhost"),
		DB_PORT:      envString("DB_PORT", "5432"),
		DB_SSL_MODE:  envString("DB_SSL_MODE", "disable"),

		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),

		REDIS_URL: os.Getenv("REDIS_URL"),

		STORAGE_BACKEND:      envString("STORAGE_BACKEND", "spaces"),
		LOCAL_STORAGE_DIR:    envString("LOCAL_STORAGE_DIR", "./uploads"),
		DO_SPACES_ACCESS_KEY: os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY: os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:     os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:     os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:   os.Getenv("DO_SPACES_ENDPOINT"),

		OCR_SERVICE_URL:  os.Getenv("OCR_SERVICE_URL"),
		MODEL_ACCESS_KEY: os.Getenv("MODEL_ACCESS_KEY"),
		INFERENCE_MODEL:  os.Getenv("INFERENCE_MODEL"),
	}, nil
}

// DSN returns the Postgres connection string
func (e *EnviornmentVariable) DSN() string {
	sslMode := e.DB_SSL_MODE
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		e.DB_HOST, e.DB_USER_NAME, e.DB_PASSWORD, e.DB_NAME, e.DB_PORT, sslMode)
}

// PipelineConfig tunes extraction and generation
type PipelineConfig struct {
	SamplePages       int           `validate:"gte=1,lte=50"`
	DensityThreshold  float64       `validate:"gt=0"`
	MaxPagesDirect    int           `validate:"gte=1,lte=500"`
	MaxPagesOCR       int           `validate:"gte=1,lte=100"`
	ExtractionWorkers int           `validate:"gte=1,lte=64"`
	StageConcurrency  int           `validate:"gte=1,lte=5"`
	GenerationRPM     int           `validate:"gte=1"`
	GenerationBurst   int           `validate:"gte=1"`
	MaxInputChars     int           `validate:"gte=1000"`
	StaleSessionTTL   time.Duration `validate:"gte=1m"`
	StuckSessionTTL   time.Duration `validate:"gte=10m"`
	StorageBackend    string        `validate:"oneof=spaces local"`
}

// Pipeline reads the pipeline tuning from the environment, applying defaults,
// and validates it
func Pipeline() (*PipelineConfig, error) {
	cfg := &PipelineConfig{
		SamplePages:       envInt("EXTRACTION_SAMPLE_PAGES", 3),
		DensityThreshold:  envFloat("EXTRACTION_DENSITY_THRESHOLD", 100),
		MaxPagesDirect:    envInt("EXTRACTION_MAX_PAGES_DIRECT", 20),
		MaxPagesOCR:       envInt("EXTRACTION_MAX_PAGES_OCR", 4),
		ExtractionWorkers: envInt("EXTRACTION_WORKERS", 4),
		StageConcurrency:  envInt("GENERATION_STAGE_CONCURRENCY", 5),
		GenerationRPM:     envInt("GENERATION_RPM", 30),
		GenerationBurst:   envInt("GENERATION_BURST", 3),
		MaxInputChars:     envInt("GENERATION_MAX_INPUT_CHARS", 60000),
		StaleSessionTTL:   envDuration("STALE_SESSION_TTL", 24*time.Hour),
		StuckSessionTTL:   envDuration("STUCK_SESSION_TTL", 2*time.Hour),
		StorageBackend:    envString("STORAGE_BACKEND", "spaces"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
