package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/api"
	"github.com/sahilchouksey/study-artifacts/config"
	"github.com/sahilchouksey/study-artifacts/database"
	"github.com/sahilchouksey/study-artifacts/handlers"
	session_handlers "github.com/sahilchouksey/study-artifacts/handlers/session"
	"github.com/sahilchouksey/study-artifacts/router"
	"github.com/sahilchouksey/study-artifacts/services/cron"
	"github.com/sahilchouksey/study-artifacts/services/digitalocean"
	"github.com/sahilchouksey/study-artifacts/services/extraction"
	"github.com/sahilchouksey/study-artifacts/services/generation"
	"github.com/sahilchouksey/study-artifacts/services/ocr"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
	"github.com/sahilchouksey/study-artifacts/services/session"
	"github.com/sahilchouksey/study-artifacts/services/storage"
	"github.com/sahilchouksey/study-artifacts/utils/auth"
	"github.com/sahilchouksey/study-artifacts/utils/cache"
)

const shutdownTimeout = 30 * time.Second

func SetupAndRunServer() error {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		log.Warnf("No .env file loaded: %v", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}
	if getEnv.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	pipeline, err := config.Pipeline()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM(getEnv)
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	healthChecks := map[string]handlers.HealthCheck{
		"database": store.HealthCheck,
	}

	// Progress events go through Redis when it is reachable so any instance
	// can serve a session's stream
	var broker session.Broker = session.NewMemoryBroker()
	if getEnv.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Warnf("Failed to connect to Redis: %v. Progress streaming is limited to this instance.", err)
		} else {
			defer redisCache.Close()
			broker = session.NewRedisBroker(redisCache)
			healthChecks["redis"] = redisCache.Ping
		}
	}

	tracker := session.NewTracker(session.NewGormStore(store.DB()), broker)

	blobs, err := newBlobStore(getEnv)
	if err != nil {
		return err
	}

	ocrClient := ocr.NewClient(getEnv.OCR_SERVICE_URL, 0)
	healthChecks["ocr"] = ocrClient.HealthCheck

	engine, err := extraction.NewEngine(pagesource.NewResolver(blobs), ocrClient, extraction.Config{
		SamplePages:      pipeline.SamplePages,
		DensityThreshold: pipeline.DensityThreshold,
		MaxPagesDirect:   pipeline.MaxPagesDirect,
		MaxPagesOCR:      pipeline.MaxPagesOCR,
		Workers:          pipeline.ExtractionWorkers,
	})
	if err != nil {
		return err
	}

	inference := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey: getEnv.MODEL_ACCESS_KEY,
		Model:  getEnv.INFERENCE_MODEL,
	})
	limiter := digitalocean.NewRateLimiter(digitalocean.RateLimiterFromRPM(pipeline.GenerationRPM, pipeline.GenerationBurst))
	backend := generation.NewInferenceBackend(inference, limiter, pipeline.MaxInputChars)

	orchestrator := generation.NewOrchestrator(tracker, engine, backend, generation.Config{
		StageConcurrency: pipeline.StageConcurrency,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Cancellations issued on other instances
	listener := session.NewCancelListener(getEnv.DSN(), tracker)
	if err := listener.Start(ctx); err != nil {
		log.Warnf("Cancellation listener disabled: %v", err)
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		cronCfg := cron.DefaultConfig()
		cronCfg.StaleSessionTTL = pipeline.StaleSessionTTL
		cronCfg.StuckRunTTL = pipeline.StuckSessionTTL
		cronManager := cron.NewCronManager(store.DB(), tracker, cronCfg)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warnf("Failed to start cron jobs: %v", err)
		} else {
			defer cronManager.Stop()
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: getEnv.JWT_SECRET,
		Issuer: getEnv.JWT_ISSUER,
	})
	notify := func(ctx context.Context, sessionID string) error {
		return session.NotifyCancel(ctx, store.DB(), sessionID)
	}

	// Setup Routes
	router.SetupRoutes(server.GetEngine(), router.Handlers{
		Health:  handlers.NewHealthHandler(healthChecks),
		Session: session_handlers.NewSessionHandler(tracker, orchestrator, broker, notify),
		JWT:     jwtManager,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	// Let runs in flight record their outcomes before the database closes
	stop()
	orchestrator.Wait()
	log.Info("All processing runs finished")
	return nil
}

// newBlobStore selects where uploaded documents are read from
func newBlobStore(env *config.EnviornmentVariable) (storage.BlobStore, error) {
	switch env.STORAGE_BACKEND {
	case "local":
		log.Infof("Reading uploads from %s", env.LOCAL_STORAGE_DIR)
		return storage.NewLocalStore(env.LOCAL_STORAGE_DIR)
	default:
		return storage.NewSpacesStore(storage.SpacesConfig{
			AccessKey: env.DO_SPACES_ACCESS_KEY,
			SecretKey: env.DO_SPACES_SECRET_KEY,
			Bucket:    env.DO_SPACES_BUCKET,
			Region:    env.DO_SPACES_REGION,
			Endpoint:  env.DO_SPACES_ENDPOINT,
		})
	}
}
