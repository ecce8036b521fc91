package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// DefaultTempDirName is the directory created in the system temporary directory
// for the files of the scheduler, when jobs.temp_dir is not set
const DefaultTempDirName = "jobscheduler"

// Queue backends
const (
	BackendRabbitMQ = "rabbitmq"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	RabbitMQ RabbitMQConfig       `yaml:"rabbitmq"`
	Redis    RedisConfig          `yaml:"redis"`
	Queue    SchedulerQueueConfig `yaml:"queue"`
	Logging  LoggingConfig        `yaml:"logging"`
	App      AppConfig            `yaml:"app"`
	Worker   WorkerConfig         `yaml:"worker"`
	Jobs     JobsConfig           `yaml:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds connection retry settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	Password     string           `yaml:"password"`
	DB           int              `yaml:"db"`
	PoolSize     int              `yaml:"pool_size"`
	DialTimeout  time.Duration    `yaml:"dial_timeout"`
	ReadTimeout  time.Duration    `yaml:"read_timeout"`
	WriteTimeout time.Duration    `yaml:"write_timeout"`
	Connection   ConnectionConfig `yaml:"connection"`
}

// Addr returns the host:port address of the Redis server
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SchedulerQueueConfig selects how the web tier talks to the job scheduler
type SchedulerQueueConfig struct {
	Backend string           `yaml:"backend"`
	Redis   RedisQueueConfig `yaml:"redis"`
}

// RedisQueueConfig holds the keys of the redis backend
type RedisQueueConfig struct {
	CommandsKey   string        `yaml:"commands_key"`
	ProcessingKey string        `yaml:"processing_key"`
	HeartbeatKey  string        `yaml:"heartbeat_key"`
	HeartbeatTTL  time.Duration `yaml:"heartbeat_ttl"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds job scheduler process configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// PeriodConfig is a period written as {type, value}
type PeriodConfig struct {
	Type  string `yaml:"type"`
	Value int    `yaml:"value"`
}

// Period converts the configured period
func (p PeriodConfig) Period() (*jobs.Period, error) {
	return jobs.NewPeriod(jobs.PeriodUnit(p.Type), p.Value)
}

// JobsConfig holds the job rules shared by both services
type JobsConfig struct {
	MaxJobsPerUser        int          `yaml:"max_jobs_per_user"`
	PseudoPeriodHours     int          `yaml:"pseudo_period_hours"`
	TempDir               string       `yaml:"temp_dir"`
	FinishedJobsRetention PeriodConfig `yaml:"finished_jobs_retention"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendRabbitMQ
	}
	if c.Queue.Redis.CommandsKey == "" {
		c.Queue.Redis.CommandsKey = "jobscheduler:commands"
	}
	if c.Queue.Redis.ProcessingKey == "" {
		c.Queue.Redis.ProcessingKey = "jobscheduler:processing"
	}
	if c.Queue.Redis.HeartbeatKey == "" {
		c.Queue.Redis.HeartbeatKey = "jobscheduler:heartbeat"
	}
	if c.Queue.Redis.HeartbeatTTL <= 0 {
		c.Queue.Redis.HeartbeatTTL = 30 * time.Second
	}
	if c.Queue.Redis.PollTimeout <= 0 {
		c.Queue.Redis.PollTimeout = 5 * time.Second
	}
	if c.RabbitMQ.Consumer.Tag == "" {
		c.RabbitMQ.Consumer.Tag = "job-scheduler"
	}
	if c.Jobs.MaxJobsPerUser <= 0 {
		c.Jobs.MaxJobsPerUser = 1
	}
	if c.Jobs.PseudoPeriodHours <= 0 {
		c.Jobs.PseudoPeriodHours = 1
	}
	if c.Jobs.TempDir == "" {
		c.Jobs.TempDir = filepath.Join(os.TempDir(), DefaultTempDirName)
	}
	if c.Jobs.FinishedJobsRetention.Type == "" {
		c.Jobs.FinishedJobsRetention = PeriodConfig{Type: string(jobs.PeriodWeeks), Value: 1}
	}
}

// Validate checks the sections shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Queue.Backend {
	case BackendRabbitMQ, "":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
		if c.Redis.Port < MinPort || c.Redis.Port > MaxPort {
			return fmt.Errorf("invalid redis port: %d (must be between %d and %d)", c.Redis.Port, MinPort, MaxPort)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown queue backend: %q", c.Queue.Backend)
	}

	if c.Jobs.MaxJobsPerUser < 0 {
		return fmt.Errorf("jobs max_jobs_per_user must not be negative")
	}

	if c.Jobs.PseudoPeriodHours < 0 {
		return fmt.Errorf("jobs pseudo_period_hours must not be negative")
	}

	if c.Jobs.FinishedJobsRetention.Type != "" {
		if _, err := c.Jobs.FinishedJobsRetention.Period(); err != nil {
			return fmt.Errorf("invalid jobs finished_jobs_retention: %w", err)
		}
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// ValidateAPIConfig checks the configuration of the api service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.Validate()
}

// ValidateWorkerConfig checks the configuration of the job scheduler
func (c *Config) ValidateWorkerConfig() error {
	if c.Queue.Backend == BackendMemory {
		return fmt.Errorf("the memory queue backend only works inside the api service")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	// The temporary files cleaner removes every old file of temp_dir
	if c.Jobs.TempDir != "" {
		dir := filepath.Clean(c.Jobs.TempDir)
		if dir == filepath.Clean(os.TempDir()) || dir == string(filepath.Separator) {
			return fmt.Errorf("jobs temp_dir must be a dedicated directory, got %q", c.Jobs.TempDir)
		}
	}

	return c.Validate()
}
