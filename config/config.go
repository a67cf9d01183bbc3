package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"swap-orchestrator/core/models"
)

// Default prompts, matching the prompts the service shipped with. Callers
// may override any of them per request or via a prompts file.
const (
	DefaultAddPersonPrompt = "Add a realistic person to this scene in a natural pose. " +
		"The person should be doing something interesting but believable. " +
		"Keep the background, lighting, and environment exactly as they are. " +
		"Only add the person, do not change anything else in the image."

	DefaultCompositePrompt = "Create a side-by-side comparison by placing the first image on the left " +
		"and the second image on the right, with equal spacing and the same height. " +
		"Make it look like a before/after or comparison layout."

	DefaultSwapPrompt = "This is a side-by-side composite image. I need you to: " +
		"1) Take the person's appearance from the RIGHT side image, " +
		"2) Apply that person's appearance to the person on the LEFT side, " +
		"3) Keep the LEFT side background, pose, and scene exactly as they are, " +
		"4) Only change the person's appearance, not the environment, " +
		"5) Return ONLY the left side image with the updated person. " +
		"The result should be the left side scene with the right side person's appearance."
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string

	// Session store: "memory" (default) or "postgres"
	SessionBackend string
	DatabaseURL    string

	// Artifact store: "disk" (default) or "s3"
	ArtifactBackend string
	ArtifactRoot    string
	S3Bucket        string
	S3Prefix        string

	// Remote edit capability
	EditAPIURL      string
	EditAPIKey      string
	EditTimeout     time.Duration
	EditMaxAttempts int
	EditBaseDelay   time.Duration

	// Default prompts for runs that do not supply their own
	DefaultPrompts models.Prompts
}

// Load loads configuration from environment variables. A .env file in the
// working directory is honored when present.
func Load() *Config {
	godotenv.Load()

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8000"),
		SessionBackend:  getEnv("SESSION_BACKEND", "memory"),
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://localhost/swap_orchestrator?sslmode=disable"),
		ArtifactBackend: getEnv("ARTIFACT_BACKEND", "disk"),
		ArtifactRoot:    getEnv("ARTIFACT_ROOT", "output"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", "sessions"),
		EditAPIURL:      getEnv("BFL_API_URL", "https://api.bfl.ai/v1/flux-kontext-pro"),
		EditAPIKey:      getEnv("BFL_API_KEY", ""),
		EditTimeout:     getEnvDuration("EDIT_TIMEOUT", 5*time.Minute),
		EditMaxAttempts: getEnvInt("EDIT_MAX_ATTEMPTS", 3),
		EditBaseDelay:   getEnvDuration("EDIT_BASE_DELAY", 500*time.Millisecond),
		DefaultPrompts: models.Prompts{
			AddPerson: DefaultAddPersonPrompt,
			Composite: DefaultCompositePrompt,
			Swap:      DefaultSwapPrompt,
		},
	}

	if path := os.Getenv("PROMPTS_FILE"); path != "" {
		prompts, err := LoadPromptsFile(path)
		if err != nil {
			log.Fatalf("Failed to load prompts file %s: %v", path, err)
		}
		cfg.DefaultPrompts = MergePrompts(cfg.DefaultPrompts, prompts)
	}

	return cfg
}

// MergePrompts overlays non-empty fields of override onto base
func MergePrompts(base, override models.Prompts) models.Prompts {
	if override.AddPerson != "" {
		base.AddPerson = override.AddPerson
	}
	if override.Composite != "" {
		base.Composite = override.Composite
	}
	if override.Swap != "" {
		base.Swap = override.Swap
	}
	return base
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
