package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the full server configuration.
type Config struct {
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Secret field WITHOUT an envconfig tag, loaded from the secrets dir.
	DBPassword string

	// Redis (persistent stream store + media store)
	RedisAddr             string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB               int           `envconfig:"REDIS_DB" default:"0"`
	StreamTTL             time.Duration `envconfig:"STREAM_TTL" default:"24h"`
	StreamLivenessTimeout time.Duration `envconfig:"STREAM_LIVENESS_TIMEOUT" default:"90s"`

	// RabbitMQ (deferred task scheduler)
	RabbitMQURL   string `envconfig:"RABBITMQ_URL" required:"true"`
	TaskQueue     string `envconfig:"TASK_QUEUE" default:"gm_tasks"`
	TaskWaitQueue string `envconfig:"TASK_WAIT_QUEUE" default:"gm_tasks_wait"`
	TaskDLQ       string `envconfig:"TASK_DLQ" default:"gm_tasks_dlq"`

	// Model providers
	AIBaseURL         string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	OllamaBaseURL     string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	AITimeout         time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	DefaultTextModel  string        `envconfig:"DEFAULT_TEXT_MODEL" default:"gpt-4o"`
	DefaultImageModel string        `envconfig:"DEFAULT_IMAGE_MODEL" default:"dall-e-3"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	SpeechModel       string        `envconfig:"SPEECH_MODEL" default:"tts-1"`
	SpeechVoice       string        `envconfig:"SPEECH_VOICE" default:"onyx"`
	MaxTurnSteps      int           `envconfig:"MAX_TURN_STEPS" default:"8"`
	// Secret field WITHOUT an envconfig tag, loaded from the secrets dir.
	AIAPIKey string

	// Delay before the async memory extraction pass runs after a turn.
	MemoryExtractionDelay time.Duration `envconfig:"MEMORY_EXTRACTION_DELAY" default:"30s"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// readSecret reads a secret from the standard Docker Secrets path.
func readSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// LoadConfig loads configuration from environment variables and secret files.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = readSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.AIAPIKey, loadErr = readSecret("ai_api_key")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Configuration loaded (secrets from files):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Task Queue: %s (wait: %s, dlq: %s)", cfg.TaskQueue, cfg.TaskWaitQueue, cfg.TaskDLQ)
	log.Printf("  Text Model: %s, Image Model: %s, Embeddings: %s", cfg.DefaultTextModel, cfg.DefaultImageModel, cfg.EmbeddingModel)
	log.Printf("  Max Turn Steps: %d", cfg.MaxTurnSteps)
	log.Println("  AI API Key: [LOADED]")

	return &cfg, nil
}
