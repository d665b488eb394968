package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Webhook   WebhookConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	SendTimeout time.Duration
	Concurrency int
}

type WebhookConfig struct {
	URL        string
	ContentMax int
}

// LoadAll reads the configuration from the environment and reports every
// problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	pgURL, err := requireEnv("POSTGRES_URL")
	collect(err)
	webhookURL, err := requireEnv("WEBHOOK_URL")
	collect(err)

	contentMax, err := getEnvInt("CONTENT_MAX", 4096)
	collect(err)
	intervalSec, err := getEnvInt("SCHED_INTERVAL_SECONDS", 15)
	collect(err)
	batch, err := getEnvInt("SCHED_BATCH_SIZE", 50)
	collect(err)
	timeoutSec, err := getEnvInt("SEND_TIMEOUT_SECONDS", 10)
	collect(err)
	concurrency, err := getEnvInt("SEND_CONCURRENCY", 8)
	collect(err)

	redisCfg, err := loadRedisConfig()
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: pgURL,
		},
		Webhook: WebhookConfig{
			URL:        webhookURL,
			ContentMax: contentMax,
		},
		Scheduler: SchedulerConfig{
			Interval:    time.Duration(intervalSec) * time.Second,
			BatchSize:   batch,
			SendTimeout: time.Duration(timeoutSec) * time.Second,
			Concurrency: concurrency,
		},
		Redis: redisCfg,
	}

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, joinErrors([]error{dbErr, ttlErr})
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("SEND_CONCURRENCY must be > 0"))
	}
	if cfg.Webhook.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

// joinErrors drops nils and returns nil when nothing is left.
func joinErrors(errs []error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return errors.Join(kept...)
}
