package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
)

// Config is everything cmd/server needs, read from LEDGER_* variables.
type Config struct {
	HTTPAddr    string
	Environment string
	LogLevel    string

	LockTimeout time.Duration

	KafkaBrokers []string // empty disables event publishing
	KafkaTopic   string

	RateLimitRPS     float64 // zero disables rate limiting
	RateLimitBurst   int
	RateLimitIdleTTL time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var (
		cfg Config
		err error
	)
	cfg.HTTPAddr = env("LEDGER_HTTP_ADDR", ":8080")
	cfg.Environment = env("LEDGER_ENV", "production")
	cfg.LogLevel = env("LEDGER_LOG_LEVEL", "")
	cfg.KafkaBrokers = list(env("LEDGER_KAFKA_BROKERS", ""))
	cfg.KafkaTopic = env("LEDGER_KAFKA_TOPIC", "transfer_completed")

	if cfg.LockTimeout, err = duration("LEDGER_LOCK_TIMEOUT", ledger.DefaultLockTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS, err = float("LEDGER_RATE_LIMIT_RPS", 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = integer("LEDGER_RATE_LIMIT_BURST", 10); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitIdleTTL, err = duration("LEDGER_RATE_LIMIT_IDLE_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	failures, err := integer("LEDGER_BREAKER_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.BreakerFailures = uint32(failures)
	if cfg.BreakerTimeout, err = duration("LEDGER_BREAKER_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.LockTimeout <= 0:
		return errors.New("LEDGER_LOCK_TIMEOUT must be positive")
	case c.RateLimitRPS < 0:
		return errors.New("LEDGER_RATE_LIMIT_RPS must not be negative")
	case c.RateLimitRPS > 0 && c.RateLimitBurst <= 0:
		return errors.New("LEDGER_RATE_LIMIT_BURST must be positive when rate limiting is on")
	case c.BreakerFailures == 0:
		return errors.New("LEDGER_BREAKER_FAILURES must be positive")
	case c.BreakerTimeout <= 0:
		return errors.New("LEDGER_BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func list(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid non-negative integer %q", key, v)
	}
	return n, nil
}

func float(key string, def float64) (float64, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
