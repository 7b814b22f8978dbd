package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Queue   QueueConfig   `yaml:"queue"`
	Store   StoreConfig   `yaml:"store"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port            int   `yaml:"port"`
	MaxUploadSize   int64 `yaml:"max_upload_size"`
	RequestDeadline int   `yaml:"request_deadline"` // seconds the transcribe endpoint blocks before falling back to 202
}

// EngineConfig configures the transcription engine adapter.
type EngineConfig struct {
	APIKey           string `yaml:"api_key"`
	ChunkSeconds     int    `yaml:"chunk_seconds"`     // window size for long-media chunking
	ChunkConcurrency int    `yaml:"chunk_concurrency"` // chunks transcribed in parallel per job
	MaxRetries       int    `yaml:"max_retries"`
	RequestTimeout   int    `yaml:"request_timeout"` // seconds per engine call
	JobTimeout       int    `yaml:"job_timeout"`     // minutes before a whole job is failed
}

// QueueConfig selects and configures the job queue backend.
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory | rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	Workers    int            `yaml:"workers"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig configures the RabbitMQ queue backend.
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	Type     string         `yaml:"type"` // memory | redis | postgres | hybrid
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig configures the redis job store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// PostgresConfig configures the postgres job store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig configures the blob store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoadConfig reads the YAML config file, applies environment overrides
// and fills in defaults. A .env file next to the binary is honored.
func LoadConfig(configPath string) (*Config, error) {
	godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// The API key is secret material; the environment wins over the file.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Engine.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

// Validate checks required fields and applies defaults in place.
func (c *Config) Validate() error {
	if c.Engine.APIKey == "" {
		return fmt.Errorf("engine api key not set (config engine.api_key or OPENAI_API_KEY)")
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 500 * 1024 * 1024
	}
	if c.Server.RequestDeadline <= 0 {
		c.Server.RequestDeadline = 300
	}

	if c.Engine.ChunkSeconds <= 0 {
		c.Engine.ChunkSeconds = 600
	}
	if c.Engine.ChunkConcurrency <= 0 {
		c.Engine.ChunkConcurrency = 3
	}
	if c.Engine.MaxRetries <= 0 {
		c.Engine.MaxRetries = 3
	}
	if c.Engine.RequestTimeout <= 0 {
		c.Engine.RequestTimeout = 300
	}
	if c.Engine.JobTimeout <= 0 {
		c.Engine.JobTimeout = 30
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}

	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Redis.TTLHours <= 0 {
		c.Store.Redis.TTLHours = 72
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}

	return nil
}
