package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"gen-agents/internal/cache"
	"gen-agents/internal/config"
	"gen-agents/internal/evaluator"
	"gen-agents/internal/generator"
	"gen-agents/internal/hf"
	"gen-agents/internal/llm"
	"gen-agents/internal/logger"
	"gen-agents/internal/queue"
	"gen-agents/internal/store"
)

// EvaluatorDeps bundles runtime dependencies for the evaluator service.
type EvaluatorDeps struct {
	Config    config.Config
	Log       *slog.Logger
	Evaluator *evaluator.ContextRelevanceEvaluator
	Cache     cache.Cache
	Store     store.Store
	Queue     queue.Queue
}

// GeneratorDeps bundles runtime dependencies for the generator service.
type GeneratorDeps struct {
	Config    config.Config
	Log       *slog.Logger
	Generator *generator.HuggingFaceGenerator
}

// ReporterDeps bundles runtime dependencies for the report worker.
type ReporterDeps struct {
	Config config.Config
	Log    *slog.Logger
	Store  store.Store
	Queue  queue.Queue
}

// BuildEvaluator loads env, config, and the evaluator service components.
func BuildEvaluator() (EvaluatorDeps, error) {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return EvaluatorDeps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	eval, err := evaluator.NewContextRelevance(llmClient, log, evaluator.WithRaiseOnFailure(false))
	if err != nil {
		return EvaluatorDeps{}, fmt.Errorf("failed to initialize evaluator: %w", err)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		return EvaluatorDeps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	st, err := buildStore(cfg, log)
	if err != nil {
		return EvaluatorDeps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return EvaluatorDeps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	return EvaluatorDeps{
		Config:    cfg,
		Log:       log,
		Evaluator: eval,
		Cache:     c,
		Store:     st,
		Queue:     q,
	}, nil
}

// BuildGenerator loads env, config, and the generation components.
func BuildGenerator(ctx context.Context) (GeneratorDeps, error) {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	apiType, err := hf.ParseAPIType(cfg.HFAPIType)
	if err != nil {
		return GeneratorDeps{}, err
	}
	client, err := hf.NewClient(ctx, hf.Config{
		APIType: apiType,
		Model:   cfg.HFModel,
		URL:     cfg.HFURL,
		Token:   hf.TokenFromEnv(),
	}, log)
	if err != nil {
		return GeneratorDeps{}, fmt.Errorf("failed to initialize hf client: %w", err)
	}
	gen, err := generator.NewHuggingFace(client, log,
		generator.WithGenerationParams(hf.GenerationParams{MaxNewTokens: cfg.MaxNewTokens}),
	)
	if err != nil {
		return GeneratorDeps{}, fmt.Errorf("failed to initialize generator: %w", err)
	}
	log.Info("using Hugging Face text generation", "api_type", apiType, "model", client.Model())
	return GeneratorDeps{
		Config:    cfg,
		Log:       log,
		Generator: gen,
	}, nil
}

// BuildReporter loads env, config, and the report worker components.
func BuildReporter() (ReporterDeps, error) {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	st, err := buildStore(cfg, log)
	if err != nil {
		return ReporterDeps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return ReporterDeps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	return ReporterDeps{
		Config: cfg,
		Log:    log,
		Store:  st,
		Queue:  q,
	}, nil
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CACHE_PROVIDER=redis")
		}
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		log.Info("using Redis cache")
		return c, nil
	case "noop":
		log.Info("caching disabled")
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: redis, noop)", cfg.CacheProvider)
	}
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}
