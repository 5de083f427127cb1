package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the progression service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Cache    CacheConfig    `yaml:"cache"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

type WorkerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	MaxAttempts  int           `yaml:"max_attempts"`
	SaveRetries  int           `yaml:"save_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxJitter    time.Duration `yaml:"max_jitter"`
}

type CacheConfig struct {
	// DefinitionTTL bounds how stale a cached challenge definition may be.
	// Zero disables the cache.
	DefinitionTTL time.Duration `yaml:"definition_ttl"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file.
// This is intentionally simple and explicit.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "elios",
			Password:        "elios_dev_password",
			Name:            "elios_dev",
			SSLMode:         "disable",
			MaxConnections:  20,
			MinConnections:  2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			PoolSize:     5,
			PollInterval: 1 * time.Second,
			BatchSize:    10,
			JobTimeout:   10 * time.Second,
			ReapInterval: 30 * time.Second,
			LeaseTTL:     1 * time.Minute,
			MaxAttempts:  5,
			SaveRetries:  3,
			BaseDelay:    2 * time.Second,
			MaxDelay:     5 * time.Minute,
			MaxJitter:    500 * time.Millisecond,
		},
		Cache:    CacheConfig{DefinitionTTL: 30 * time.Second},
		Shutdown: ShutdownConfig{Timeout: 30 * time.Second},
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port: %d", c.Database.Port)
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	if c.Worker.PoolSize < 1 {
		return fmt.Errorf("worker.pool_size must be at least 1")
	}
	if c.Worker.BatchSize < 1 {
		return fmt.Errorf("worker.batch_size must be at least 1")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker.job_timeout must be positive")
	}
	if c.Worker.LeaseTTL <= c.Worker.JobTimeout {
		return fmt.Errorf("worker.lease_ttl must exceed worker.job_timeout")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be at least 1")
	}
	if c.Worker.SaveRetries < 0 {
		return fmt.Errorf("worker.save_retries must be non-negative")
	}

	if c.Cache.DefinitionTTL < 0 {
		return fmt.Errorf("cache.definition_ttl must be non-negative")
	}

	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	return nil
}
