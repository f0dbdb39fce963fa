package common

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/joseph-ayodele/cv-parser/constants"
)

// Config holds all application configuration
type Config struct {
	ObjectStore string `env:"OBJECT_STORE" envDefault:"supabase"`
	RecordStore string `env:"RECORD_STORE" envDefault:"supabase"`

	Queue    QueueConfig
	Worker   WorkerConfig
	Supabase SupabaseConfig
	S3       S3Config
	Database DatabaseConfig
	Extract  ExtractConfig
	Server   ServerConfig
	Log      LogConfig
}

// QueueConfig holds broker-related configuration
type QueueConfig struct {
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	Name        string        `env:"QUEUE_NAME" envDefault:"cv-parse"`
	Prefix      string        `env:"QUEUE_PREFIX" envDefault:"cvq"`
	ConsumerID  string        `env:"QUEUE_CONSUMER_ID"`
	PollTimeout time.Duration `env:"QUEUE_POLL_TIMEOUT" envDefault:"2s"`
	MaxAttempts int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"1"`
	Backoff     time.Duration `env:"QUEUE_BACKOFF" envDefault:"5s"`
	MaxBackoff  time.Duration `env:"QUEUE_MAX_BACKOFF" envDefault:"10m"`
	ResultTTL   time.Duration `env:"QUEUE_RESULT_TTL" envDefault:"24h"`
}

// WorkerConfig holds worker loop configuration
type WorkerConfig struct {
	Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"1"`
	JobTimeout      time.Duration `env:"JOB_TIMEOUT" envDefault:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"0s"`
}

// SupabaseConfig holds Supabase storage and REST configuration
type SupabaseConfig struct {
	URL            string        `env:"SUPABASE_URL"`
	ServiceRoleKey string        `env:"SUPABASE_SERVICE_ROLE_KEY"`
	Bucket         string        `env:"SUPABASE_STORAGE_BUCKET" envDefault:"ats-files"`
	Timeout        time.Duration `env:"SUPABASE_TIMEOUT" envDefault:"30s"`
}

// S3Config holds S3-compatible object store configuration
type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Bucket          string `env:"S3_BUCKET"`
	ForcePathStyle  bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"true"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `env:"DB_URL"`
	MaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns         int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DialTimeout      time.Duration `env:"DB_DIAL_TIMEOUT" envDefault:"3s"`
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"0s"`
	CandidatesTable  string        `env:"CANDIDATES_TABLE" envDefault:"candidates"`
}

// ExtractConfig holds text extraction configuration
type ExtractConfig struct {
	Engine    string `env:"EXTRACT_ENGINE" envDefault:"native"`
	Pdftotext string `env:"PDFTOTEXT_BIN" envDefault:"pdftotext"`
	MaxPages  int    `env:"EXTRACT_MAX_PAGES" envDefault:"0"`
}

// ServerConfig holds the liveness surface configuration
type ServerConfig struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8000"`
	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfig loads configuration from the process environment.
func LoadConfig() (*Config, error) {
	return load(env.Options{})
}

// LoadConfigFromEnv loads configuration from the given variables only.
func LoadConfigFromEnv(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, NewAppError(CodeConfig, "parse environment", err)
	}
	// stable across restarts so a restarted worker recovers its own active list
	if cfg.Queue.ConsumerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.Queue.ConsumerID = host
	}
	if cfg.S3.Bucket == "" {
		cfg.S3.Bucket = cfg.Supabase.Bucket
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Queue.RedisURL == "" {
		return NewConfigError("REDIS_URL is required")
	}
	if c.Queue.Name == "" {
		return NewConfigError("QUEUE_NAME is required")
	}
	if c.Queue.MaxAttempts < 1 {
		return NewConfigError("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Worker.Concurrency < 1 {
		return NewConfigError("WORKER_CONCURRENCY must be at least 1")
	}

	usesSupabase := false
	switch c.ObjectStore {
	case constants.ObjectStoreSupabase:
		usesSupabase = true
	case constants.ObjectStoreS3:
		if c.S3.Bucket == "" {
			return NewConfigError("S3_BUCKET is required")
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown OBJECT_STORE %q", c.ObjectStore))
	}

	switch c.RecordStore {
	case constants.RecordStoreSupabase:
		usesSupabase = true
	case constants.RecordStorePostgres, constants.RecordStoreSQLite:
		if err := c.ValidateDatabase(); err != nil {
			return err
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown RECORD_STORE %q", c.RecordStore))
	}

	if usesSupabase {
		if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
			return NewConfigError("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
		}
		if c.Supabase.Bucket == "" {
			return NewConfigError("SUPABASE_STORAGE_BUCKET must be non-empty")
		}
	}

	switch c.Extract.Engine {
	case constants.EngineNative, constants.EnginePdftotext:
	default:
		return NewConfigError(fmt.Sprintf("unknown EXTRACT_ENGINE %q", c.Extract.Engine))
	}
	return nil
}

// ValidateDatabase checks the settings needed by the SQL record store.
func (c *Config) ValidateDatabase() error {
	if c.Database.DSN == "" {
		return NewConfigError("DB_URL is required")
	}
	if c.Database.CandidatesTable == "" {
		return NewConfigError("CANDIDATES_TABLE must be non-empty")
	}
	return nil
}
