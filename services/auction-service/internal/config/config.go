// Package config reads the auction service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the auction service binaries
type Config struct {
	// DatabaseURL selects Postgres; empty runs the API on the in-memory store
	DatabaseURL    string
	MigrateOnStart bool

	HTTPAddr        string
	ShutdownTimeout time.Duration

	RabbitMQURL string
	RedisURL    string

	JWTPublicKeyPath  string
	JWTPrivateKeyPath string
	JWTIssuer         string

	// DBLockTimeout bounds how long a transaction waits for a row lock
	DBLockTimeout time.Duration
	// ItemLockWait bounds how long an admission waits for the per-item lock
	ItemLockWait time.Duration
	// ItemLockTTL is the lease of a Redis item lock
	ItemLockTTL time.Duration
	// BidAdmissionRetries is how many times an admission that lost a race is attempted
	BidAdmissionRetries int

	OutboxBatchSize int
	OutboxInterval  time.Duration
}

// LoadEnvFiles loads .env.local then .env; variables already set win
func LoadEnvFiles() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
}

// Load reads Config from the environment, applying defaults
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		DatabaseURL:         getenv("AUCTION_DB_URL"),
		MigrateOnStart:      r.bool("MIGRATE_ON_START", false),
		HTTPAddr:            r.string("HTTP_ADDR", ":8080"),
		ShutdownTimeout:     r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RabbitMQURL:         getenv("RABBITMQ_URL"),
		RedisURL:            getenv("REDIS_URL"),
		JWTPublicKeyPath:    getenv("JWT_PUBLIC_KEY_PATH"),
		JWTPrivateKeyPath:   getenv("JWT_PRIVATE_KEY_PATH"),
		JWTIssuer:           r.string("JWT_ISSUER", "lotmarket"),
		DBLockTimeout:       r.duration("DB_LOCK_TIMEOUT", 3*time.Second),
		ItemLockWait:        r.duration("ITEM_LOCK_WAIT", 2*time.Second),
		ItemLockTTL:         r.duration("ITEM_LOCK_TTL", 10*time.Second),
		BidAdmissionRetries: r.int("BID_ADMISSION_RETRIES", 3),
		OutboxBatchSize:     r.int("OUTBOX_BATCH_SIZE", 10),
		OutboxInterval:      r.duration("OUTBOX_INTERVAL", time.Second),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.BidAdmissionRetries < 1 {
		errs = append(errs, errors.New("BID_ADMISSION_RETRIES must be at least 1"))
	}
	if c.OutboxBatchSize < 1 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"DB_LOCK_TIMEOUT": c.DBLockTimeout,
		"ITEM_LOCK_WAIT":  c.ItemLockWait,
		"ITEM_LOCK_TTL":   c.ItemLockTTL,
		"OUTBOX_INTERVAL": c.OutboxInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MigrateOnStart && c.DatabaseURL == "" {
		errs = append(errs, errors.New("MIGRATE_ON_START requires AUCTION_DB_URL"))
	}
	return errors.Join(errs...)
}

// reader parses typed variables and keeps the first error
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) string(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
