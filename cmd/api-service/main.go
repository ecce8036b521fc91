package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/api/handler"
	"github.com/cuongbtq/jobscheduler/internal/api/router"
	"github.com/cuongbtq/jobscheduler/internal/config"
	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/internal/jobtypes"
	"github.com/cuongbtq/jobscheduler/internal/queue"
	"github.com/cuongbtq/jobscheduler/internal/scheduler"
	"github.com/cuongbtq/jobscheduler/internal/storage"
	"github.com/cuongbtq/jobscheduler/shared/logger"
	"github.com/cuongbtq/jobscheduler/shared/postgresql"
	"github.com/cuongbtq/jobscheduler/shared/rabbitmq"
	"github.com/cuongbtq/jobscheduler/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_backend", cfg.Queue.Backend),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established",
		slog.String("pool", dbClient.Stats()),
	)

	if cfg.Database.AutoMigrate {
		if err := dbClient.ApplySchema(context.Background(), storage.Schema); err != nil {
			return fmt.Errorf("failed to apply database schema: %w", err)
		}
	}

	store := storage.NewPostgres(dbClient.GetDB())
	checkers := map[string]handler.HealthChecker{"postgres": dbClient}

	// Initialize the queue to the job scheduler
	var (
		schedulerQueue jobs.Queue
		embedded       queue.Consumer
	)
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
		appLogger.Info("Redis connection established")

		schedulerQueue = initRedisQueue(&cfg.Queue.Redis, redisClient, appLogger.Logger)
		checkers["redis"] = redisClient
	case config.BackendMemory:
		memoryQueue := queue.NewMemory()
		schedulerQueue = memoryQueue
		embedded = memoryQueue
	default:
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")

		schedulerQueue = queue.NewRabbitMQ(&queue.RabbitMQConfig{
			Client:        rabbitClient,
			Logger:        appLogger.Logger,
			ConsumerTag:   cfg.RabbitMQ.Consumer.Tag,
			PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
			RetryInterval: cfg.RabbitMQ.Connection.RetryInterval,
		})
	}

	// Initialize job manager
	manager, err := initManager(cfg, store, schedulerQueue, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The memory backend has no other process to talk to, the scheduler runs here
	var embeddedScheduler *scheduler.Scheduler
	if embedded != nil {
		embeddedScheduler = scheduler.NewScheduler(&scheduler.Config{
			Logger:      appLogger.Logger,
			Manager:     manager,
			Consumer:    embedded,
			Concurrency: cfg.Worker.Concurrency,
			JobTimeout:  cfg.Worker.JobTimeout,
		})
		go func() {
			if err := embeddedScheduler.Start(ctx); err != nil {
				appLogger.Error("Embedded job scheduler failed", slog.Any("error", err))
			}
		}()
	}

	// Initialize router
	r, err := initRouter(cfg.App.Environment, appLogger.Logger, manager, checkers)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	cancel()
	if embeddedScheduler != nil {
		embeddedScheduler.Stop()
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:          cfg.Addr(),
		Password:      cfg.Password,
		DB:            cfg.DB,
		PoolSize:      cfg.PoolSize,
		DialTimeout:   cfg.DialTimeout,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		RetryAttempts: cfg.Connection.RetryAttempts,
		RetryInterval: cfg.Connection.RetryInterval,
	}, logger)
}

// initRedisQueue builds the Redis backed queue to the job scheduler
func initRedisQueue(cfg *config.RedisQueueConfig, client *redis.Client, logger *slog.Logger) *queue.Redis {
	return queue.NewRedis(&queue.RedisConfig{
		Client:        client.GetClient(),
		Logger:        logger,
		CommandsKey:   cfg.CommandsKey,
		ProcessingKey: cfg.ProcessingKey,
		HeartbeatKey:  cfg.HeartbeatKey,
		HeartbeatTTL:  cfg.HeartbeatTTL,
		PollTimeout:   cfg.PollTimeout,
	})
}

// initManager registers the job types and creates the job manager
func initManager(cfg *config.Config, store *storage.Postgres, q jobs.Queue, logger *slog.Logger) (*jobs.Manager, error) {
	retention, err := cfg.Jobs.FinishedJobsRetention.Period()
	if err != nil {
		return nil, err
	}

	registry := jobs.NewRegistry()
	err = jobtypes.Register(registry, jobtypes.Options{
		Logger:            logger,
		Entities:          &jobtypes.LogEntityProcessor{Logger: logger},
		Reminders:         &jobtypes.LogReminderSender{Logger: logger},
		FinishedJobs:      store,
		TempDir:           cfg.Jobs.TempDir,
		PseudoPeriodHours: cfg.Jobs.PseudoPeriodHours,
		Retention:         retention,
	})
	if err != nil {
		return nil, err
	}

	return jobs.NewManager(&jobs.ManagerConfig{
		Store:          store,
		Queue:          q,
		Registry:       registry,
		Logger:         logger,
		MaxJobsPerUser: cfg.Jobs.MaxJobsPerUser,
	}), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, manager *jobs.Manager, checkers map[string]handler.HealthChecker) (*gin.Engine, error) {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:   logger,
		Manager:  manager,
		Checkers: checkers,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
