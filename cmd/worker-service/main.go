package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/joho/godotenv"
)

// schedulerQueue is what the scheduler needs from a queue backend:
// it sends commands through the manager and consumes them
type schedulerQueue interface {
	jobs.Queue
	queue.Consumer
}

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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting job scheduler service",
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

	// Initialize the command queue
	var (
		commands  schedulerQueue
		heartbeat scheduler.Heartbeater
	)
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
		appLogger.Info("Redis connection established")

		redisQueue := initRedisQueue(&cfg.Queue.Redis, redisClient, appLogger.Logger)
		commands = redisQueue
		heartbeat = redisQueue
	default:
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")

		commands = queue.NewRabbitMQ(&queue.RabbitMQConfig{
			Client:        rabbitClient,
			Logger:        appLogger.Logger,
			ConsumerTag:   cfg.RabbitMQ.Consumer.Tag,
			PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
			RetryInterval: cfg.RabbitMQ.Connection.RetryInterval,
		})
	}

	// Initialize job manager
	manager, err := initManager(cfg, store, commands, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job manager: %w", err)
	}

	// Create scheduler instance
	schedulerInstance := scheduler.NewScheduler(&scheduler.Config{
		Logger:            appLogger.Logger,
		Manager:           manager,
		Consumer:          commands,
		Heartbeat:         heartbeat,
		Concurrency:       cfg.Worker.Concurrency,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start scheduler in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := schedulerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Job scheduler service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Job scheduler error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop the scheduler
	cancel()

	// Give running jobs time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		schedulerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Job scheduler stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Job scheduler shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Job scheduler service shutdown complete")
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

// initRedisQueue builds the Redis backed command queue
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

// initManager registers the job types with their executors and creates the job manager
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
