package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/scorestream-api/internal/config"
	"github.com/noah-isme/scorestream-api/internal/database"
	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/internal/handler"
	"github.com/noah-isme/scorestream-api/internal/middleware"
	"github.com/noah-isme/scorestream-api/internal/repository"
	"github.com/noah-isme/scorestream-api/internal/router"
	"github.com/noah-isme/scorestream-api/internal/service"
	"github.com/noah-isme/scorestream-api/pkg/ai"
	dockerexec "github.com/noah-isme/scorestream-api/pkg/docker"
	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "scorestream-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probes := map[string]handler.HealthProbe{}

	var attempts repository.ChallengeAttemptRepository
	if db := connectDatabase(cfg, logger); db != nil {
		attempts = repository.NewChallengeAttemptRepository(db)
		probes["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	natsConn := connectNATS(cfg, logger)
	if natsConn != nil {
		defer natsConn.Drain()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	engine, executor := selectEngine(ctx, cfg, logger)
	if executor != nil {
		defer executor.Close()
		probes["docker"] = executor.Ping
	}

	runner, err := sandbox.NewRunner(engine, executor, sandbox.PythonConfig{
		Image:         cfg.PythonImage,
		WorkspaceRoot: cfg.CodeRunWorkspaceDir,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sandbox runner")
	}

	g := grader.New(grader.DefaultCatalogue(), runner, sandbox.Limits{
		Timeout:        cfg.SandboxTimeout,
		MaxSteps:       cfg.SandboxMaxSteps,
		MemoryLimitMB:  int64(cfg.CodeRunMemoryMB),
		CPUShares:      int64(cfg.CodeRunCPUShares),
		MaxOutputBytes: cfg.SandboxOutputBytes,
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	feed := service.NewAttemptFeedService(redisClient, natsConn, cfg.AttemptFeedPrefix, logger)
	feed.Start(ctx)

	challengeService := service.NewChallengeService(g, attempts, redisClient, feed, validate, logger, service.ChallengeConfig{
		Engine:   engine,
		CacheTTL: cfg.GradeCacheTTL,
	})

	var hintService service.HintService
	coach, err := ai.NewCoach(ai.CoachConfig{
		Provider:        cfg.AIProvider,
		Model:           cfg.AIModel,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		Logger:          logger,
	})
	switch {
	case err == nil:
		hintService = service.NewHintService(g, coach, cfg.AIProvider, validate, logger)
	case errors.Is(err, ai.ErrNoCoach):
		logger.Info().Msg("ai hints disabled")
	default:
		logger.Fatal().Err(err).Msg("failed to create ai coach")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    256 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ChallengeHandler:   handler.NewChallengeHandler(challengeService, hintService, logger),
		AttemptFeedHandler: handler.NewAttemptFeedHandler(feed, logger),
		HealthProbes:       probes,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:      middleware.RateLimit("challenge-submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("engine", engine).
		Bool("hints", hintService != nil).
		Msg("server started")

	waitForShutdown(app, cancel, logger)
}

// selectEngine builds the docker executor when the configured engine may use
// it. With "auto" an unreachable daemon falls back to the embedded interpreter.
func selectEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (string, *dockerexec.DockerExecutor) {
	if cfg.SandboxEngine == sandbox.EngineStarlark {
		return sandbox.EngineStarlark, nil
	}

	dockerExecutor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.SandboxTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		PullImages:    cfg.DockerPullImages,
		Logger:        logger,
	})
	if err != nil {
		if cfg.SandboxEngine == sandbox.EngineDocker {
			logger.Fatal().Err(err).Msg("failed to create docker executor")
		}
		logger.Warn().Err(err).Msg("docker unavailable, grading with the embedded interpreter")
		return sandbox.EngineStarlark, nil
	}

	engine := sandbox.ResolveEngine(ctx, cfg.SandboxEngine, dockerExecutor.Ping)
	if engine != sandbox.EngineDocker {
		logger.Warn().Msg("docker daemon not reachable, grading with the embedded interpreter")
		_ = dockerExecutor.Close()
		return engine, nil
	}
	return engine, dockerExecutor
}

// The attempt log, cache and broker are optional: grading keeps working without them.
func connectDatabase(cfg config.Config, logger zerolog.Logger) *gorm.DB {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("database url not set, attempt history disabled")
		return nil
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("database unavailable, attempt history disabled")
		return nil
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	return db
}

func connectRedis(ctx context.Context, cfg config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	client, err := database.ConnectRedis(ctx, cfg.RedisURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, grade cache disabled")
		return nil
	}
	return client
}

func connectNATS(cfg config.Config, logger zerolog.Logger) *nats.Conn {
	if cfg.NATSURL == "" {
		return nil
	}

	conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, attempt feed stays local")
		return nil
	}
	return conn
}

func waitForShutdown(app *fiber.App, cancel context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
