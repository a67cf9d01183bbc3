package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"swap-orchestrator/api/rest/routes"
	"swap-orchestrator/config"
	"swap-orchestrator/core/editclient"
	"swap-orchestrator/core/pipeline"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

func main() {
	cfg := config.Load()

	// Initialize session store
	var store registry.Store
	switch cfg.SessionBackend {
	case "postgres":
		db, err := registry.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		store = registry.NewPostgresStore(db)
		log.Println("Session store: postgres")
	default:
		store = registry.NewMemoryStore()
		log.Println("Session store: in-memory (sessions do not survive a restart)")
	}

	// Initialize artifact store
	var artifacts storage.ArtifactStore
	switch cfg.ArtifactBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			log.Fatalf("ARTIFACT_BACKEND=s3 requires S3_BUCKET")
		}
		s3Store, err := storage.NewS3Store(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("Failed to initialize S3 artifact store: %v", err)
		}
		artifacts = s3Store
		log.Printf("Artifact store: s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	default:
		diskStore, err := storage.NewDiskStore(cfg.ArtifactRoot)
		if err != nil {
			log.Fatalf("Failed to initialize disk artifact store: %v", err)
		}
		artifacts = diskStore
		log.Printf("Artifact store: disk at %s", cfg.ArtifactRoot)
	}

	// Initialize remote edit client
	if cfg.EditAPIKey == "" {
		log.Println("Warning: BFL_API_KEY is not set, remote edits will be rejected")
	}
	editor := editclient.NewClient(editclient.Options{
		BaseURL:        cfg.EditAPIURL,
		APIKey:         cfg.EditAPIKey,
		AttemptTimeout: cfg.EditTimeout,
		Policy: editclient.Policy{
			MaxAttempts: cfg.EditMaxAttempts,
			BaseDelay:   cfg.EditBaseDelay,
			Multiplier:  2.0,
			MaxDelay:    cfg.EditTimeout,
		},
	})

	// Initialize registry and orchestrator
	reg := registry.New(store, artifacts)
	orchestrator := pipeline.New(reg, artifacts, editor)

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, reg, artifacts, orchestrator, cfg.DefaultPrompts)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{"*"}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: cors(r),
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
