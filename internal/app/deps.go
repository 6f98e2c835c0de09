package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"
	"github.com/redis/go-redis/v9"

	"zimflow/internal/backend"
	"zimflow/internal/cache"
	"zimflow/internal/config"
	"zimflow/internal/handoff"
	"zimflow/internal/logger"
	"zimflow/internal/orchestrator"
	"zimflow/internal/queue"
	"zimflow/internal/quiz"
	"zimflow/internal/session"
	"zimflow/internal/store"
)

// Deps bundles common runtime dependencies for services. Store and Queue are
// nil when the study pipeline is not configured.
type Deps struct {
	Config       config.Config
	Log          *slog.Logger
	Backend      backend.Backend
	Orchestrator *orchestrator.Orchestrator
	Cache        cache.Cache
	Handoff      handoff.Channel
	Store        store.Store
	Queue        queue.Queue
}

// Build loads env, config, and shared components. queueOpts are passed to the
// NATS queue.
func Build(queueOpts ...queue.Option) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	b, err := buildBackend(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize backend: %w", err)
	}
	vision, err := buildVisionBackend(cfg, log, b)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize vision backend: %w", err)
	}
	rdb := buildRedis(cfg, log)
	c := buildCache(rdb, log)
	orch, err := buildOrchestrator(cfg, log, b, vision, c)
	if err != nil {
		return Deps{}, err
	}
	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log, queueOpts...)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	return Deps{
		Config:       cfg,
		Log:          log,
		Backend:      b,
		Orchestrator: orch,
		Cache:        c,
		Handoff:      buildHandoff(cfg, rdb, log),
		Store:        st,
		Queue:        q,
	}, nil
}

func buildBackend(cfg config.Config, log *slog.Logger) (backend.Backend, error) {
	switch cfg.BackendProvider {
	case "ollama":
		b, err := backend.NewOllama(log, cfg.OllamaHost, cfg.OllamaModel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama backend: %w", err)
		}
		log.Info("using Ollama backend", "model", cfg.OllamaModel)
		return b, nil
	case "openai":
		if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required when BACKEND_PROVIDER=openai")
		}
		b, err := backend.NewOpenAI(log, cfg.OpenAIKey, cfg.OpenAIBaseURL, openai.ChatModel(cfg.OpenAIModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI backend: %w", err)
		}
		log.Info("using OpenAI-compatible backend", "model", cfg.OpenAIModel, "base_url", cfg.OpenAIBaseURL)
		return b, nil
	default:
		return nil, fmt.Errorf("invalid BACKEND_PROVIDER: %s (valid options: ollama, openai)", cfg.BackendProvider)
	}
}

// buildVisionBackend gives image chat its own Ollama model when VISION_MODEL
// differs from OLLAMA_MODEL. OpenAI-compatible servers reuse b.
func buildVisionBackend(cfg config.Config, log *slog.Logger, b backend.Backend) (backend.Backend, error) {
	if cfg.BackendProvider != "ollama" || cfg.VisionModel == "" || cfg.VisionModel == cfg.OllamaModel {
		return b, nil
	}
	vision, err := backend.NewOllama(log, cfg.OllamaHost, cfg.VisionModel)
	if err != nil {
		return nil, err
	}
	log.Info("using Ollama vision model", "model", cfg.VisionModel)
	return vision, nil
}

func buildOrchestrator(cfg config.Config, log *slog.Logger, b, vision backend.Backend, c cache.Cache) (*orchestrator.Orchestrator, error) {
	mode, err := quiz.ParseMode(cfg.QuizParseMode)
	if err != nil {
		return nil, fmt.Errorf("invalid QUIZ_PARSE_MODE: %w", err)
	}
	settings := orchestrator.DefaultSettings()
	settings.MaxInputTokens = cfg.MaxInputTokens
	settings.QuizMode = mode
	settings.CacheTTL = cfg.CacheTTL
	settings.MaxVisionChats = cfg.MaxVisionChats

	sessionOpts := []session.Option{
		session.WithProgress(func(name string, pct int) {
			log.Debug("model download progress", "context", name, "percent", pct)
		}),
	}
	if !cfg.WaitForDownload {
		sessionOpts = append(sessionOpts, session.WithoutDownloadWait())
	}
	return orchestrator.New(log, b,
		orchestrator.WithSettings(settings),
		orchestrator.WithCache(c),
		orchestrator.WithVisionBackend(vision),
		orchestrator.WithSessionOptions(sessionOpts...),
	), nil
}

// buildRedis returns nil when Redis is not configured or not reachable.
func buildRedis(cfg config.Config, log *slog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, falling back to in-process cache and hand-off", "addr", cfg.RedisAddr, "err", err)
		_ = client.Close()
		return nil
	}
	return client
}

func buildCache(rdb *redis.Client, log *slog.Logger) cache.Cache {
	if rdb == nil {
		log.Info("summary cache disabled")
		return cache.NewNoOpCache()
	}
	log.Info("using Redis summary cache")
	return cache.NewRedisCacheFromClient(rdb)
}

func buildHandoff(cfg config.Config, rdb *redis.Client, log *slog.Logger) handoff.Channel {
	if rdb == nil {
		return handoff.NewMemory(cfg.HandoffMaxAge)
	}
	log.Info("using Redis hand-off channel")
	return handoff.NewRedis(rdb, log, cfg.HandoffMaxAge)
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.DBURL == "" {
		log.Info("DB_URL not set, study pipeline disabled")
		return nil, nil
	}
	db, err := store.NewPostgres(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	log.Info("using Postgres store")
	return db, nil
}

func buildQueue(cfg config.Config, log *slog.Logger, opts ...queue.Option) (queue.Queue, error) {
	if cfg.QueueURL == "" {
		log.Info("QUEUE_URL not set, study pipeline disabled")
		return nil, nil
	}
	nc, err := nats.Connect(cfg.QueueURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("using NATS queue")
	return queue.NewNATS(log, nc, opts...), nil
}
