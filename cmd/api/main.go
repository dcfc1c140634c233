package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/answer"
	"github.com/hostpilotpro/captain-cortex/internal/api/handlers"
	"github.com/hostpilotpro/captain-cortex/internal/cache"
	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/events"
	"github.com/hostpilotpro/captain-cortex/internal/grounding"
	"github.com/hostpilotpro/captain-cortex/internal/history"
	"github.com/hostpilotpro/captain-cortex/internal/llm"
	"github.com/hostpilotpro/captain-cortex/internal/metrics"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/ratelimit"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/security"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/validation"
	"github.com/hostpilotpro/captain-cortex/internal/storage/sqlite"
	"github.com/hostpilotpro/captain-cortex/pkg/config"
	appLogger "github.com/hostpilotpro/captain-cortex/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Captain Cortex API Server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	answerCache, redisClient, err := newAnswerCache(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to create answer cache", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	answerCache.StartSweeper(ctx, cfg.Cache.SweepInterval())

	lexicon := cortex.DefaultLexicon()
	if cfg.Cortex.LexiconPath != "" {
		lexicon, err = cortex.LoadLexicon(cfg.Cortex.LexiconPath)
		if err != nil {
			appLogger.Fatal("Failed to load lexicon", zap.Error(err))
		}
	}

	grounder := grounding.New(sqliteClient, grounding.Config{
		Timeout:    cfg.Grounding.Timeout(),
		MaxRetries: cfg.Grounding.MaxRetries,
		Logger:     appLogger.Named("grounding"),
	})

	generatorCfg := answer.Config{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      appLogger.Named("answer"),
	}
	if cfg.LLM.APIKey != "" {
		generatorCfg.Completer = llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			Logger:      appLogger.Named("llm"),
		})
	} else {
		appLogger.Warn("No LLM API key configured, answers use templates only")
	}

	engine, err := cortex.NewEngine(cortex.EngineConfig{
		Grounder:  grounder,
		Answerer:  answer.NewGenerator(generatorCfg),
		Cache:     answerCache,
		Detector:  cortex.NewIntentDetector(lexicon, cfg.Cortex.ConfidenceThreshold),
		Extractor: cortex.NewEntityExtractor(lexicon, nil),
		Coalesce:  cfg.Cortex.CoalesceInFlight,
		Logger:    appLogger.Named("cortex"),
	})
	if err != nil {
		appLogger.Fatal("Failed to create cortex engine", zap.Error(err))
	}

	recorder := history.NewRecorder(sqliteClient, appLogger.Named("history"))

	if cfg.Events.Enabled {
		reader, err := events.NewReader(events.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			GroupID: cfg.Events.GroupID,
		})
		if err != nil {
			appLogger.Fatal("Failed to create event reader", zap.Error(err))
		}
		defer reader.Close()

		consumer := events.NewConsumer(reader, engine, appLogger.Named("events"))
		go consumer.Run(ctx)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Organization-ID, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	handlerCfg := handlers.Config{
		MaxQuestionLength: cfg.Cortex.MaxQuestionLength,
		HistoryLimit:      cfg.Cortex.HistoryLimit,
		Logger:            appLogger.Named("api"),
	}
	cortexHandler := handlers.NewCortexHandler(engine, recorder, handlerCfg)
	wsHandler := handlers.NewWebSocketHandler(engine, recorder, handlerCfg)

	api := app.Group("/api/v1",
		limiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxQuestionLength: cfg.Cortex.MaxQuestionLength,
			Logger:            appLogger.Named("validation"),
		}),
	)

	cortexHandler.Register(api)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		pingCtx, done := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer done()

		if err := sqliteClient.Ping(pingCtx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "sqlite",
			})
		}
		if redisClient != nil {
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  "redis",
				})
			}
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Get("/cortex/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

// newAnswerCache builds the cache for the configured backend. The Redis
// client is returned so readiness checks and shutdown can use it.
func newAnswerCache(ctx context.Context, cfg *config.Config) (*cache.Cache[cortex.AnswerResult], *redis.Client, error) {
	cacheLogger := appLogger.Named("cache")
	cacheCfg := cache.Config{
		TTL:    cfg.Cache.TTL(),
		Logger: cacheLogger,
	}

	switch cfg.Cache.Backend {
	case "lru":
		store, err := cache.NewLRUStore[cortex.AnswerResult](cfg.Cache.MaxEntries)
		if err != nil {
			return nil, nil, err
		}
		return cache.New[cortex.AnswerResult](store, cacheCfg), nil, nil

	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		store := cache.NewRedisStore[cortex.AnswerResult](client, cache.RedisStoreConfig{
			Prefix: cfg.Cache.KeyPrefix,
			Expiry: 2 * cfg.Cache.TTL(),
			Logger: cacheLogger,
		})
		return cache.New[cortex.AnswerResult](store, cacheCfg), client, nil

	default:
		return cache.New[cortex.AnswerResult](cache.NewMemoryStore[cortex.AnswerResult](), cacheCfg), nil, nil
	}
}
