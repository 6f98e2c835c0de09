package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the gateway and the study worker.
type Config struct {
	// Server
	Port       int    `env:"PORT" envDefault:"8080"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8081"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Inference backend
	BackendProvider string `env:"BACKEND_PROVIDER" envDefault:"ollama"` // "ollama" (local) or "openai" (any OpenAI-compatible server)
	OllamaHost      string `env:"OLLAMA_URL"`                           // empty falls back to OLLAMA_HOST
	OllamaModel     string `env:"OLLAMA_MODEL" envDefault:"gemma3:1b"`
	VisionModel     string `env:"VISION_MODEL" envDefault:"gemma3:4b"` // image chat; Ollama only, OpenAI uses OPENAI_MODEL
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Tasks
	MaxInputTokens  int    `env:"MAX_INPUT_TOKENS" envDefault:"1024"`
	WaitForDownload bool   `env:"WAIT_FOR_DOWNLOAD" envDefault:"true"`
	QuizParseMode   string `env:"QUIZ_PARSE_MODE" envDefault:"strict"` // "strict" or "lenient"
	MaxVisionChats  int    `env:"MAX_VISION_CHATS" envDefault:"8"`

	// Store (study pipeline; disabled when empty)
	DBURL string `env:"DB_URL"`

	// Queue (study pipeline; disabled when empty)
	QueueURL string `env:"QUEUE_URL"`

	// Redis (summary cache and hand-off; in-process fallbacks when empty)
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	HandoffMaxAge time.Duration `env:"HANDOFF_MAX_AGE" envDefault:"5m"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
