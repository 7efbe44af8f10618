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
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	HTTPAddr string
	LogDir   string
	Rates    RatesConfig
	Store    string
	DB       DBConfig
	Redis    RedisConfig
}

type RatesConfig struct {
	URL          string
	Base         string
	FreshFor     time.Duration
	FetchTimeout time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
	Migrate      bool
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Load reads config.env when present and then the environment. Unset
// variables fall back to defaults.
func Load() (*Config, error) {
	return LoadFile("config.env")
}

func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	r := reader{}
	cfg := &Config{
		HTTPAddr: r.str("HTTP_ADDR", ":8080"),
		LogDir:   r.str("LOG_DIR", "logs"),
		Rates: RatesConfig{
			URL:          r.str("RATES_URL", "https://api.frankfurter.app/latest"),
			Base:         strings.ToUpper(r.str("RATES_BASE", "EUR")),
			FreshFor:     r.duration("RATES_FRESH_FOR", 60*time.Minute),
			FetchTimeout: r.duration("RATES_FETCH_TIMEOUT", 10*time.Second),
			RetryInitial: r.duration("RATES_RETRY_INITIAL", 30*time.Second),
			RetryMax:     r.duration("RATES_RETRY_MAX", 15*time.Minute),
		},
		Store: strings.ToLower(r.str("RATE_STORE", StorePostgres)),
		DB: DBConfig{
			Host:         r.str("DB_HOST", "localhost"),
			Port:         r.integer("DB_PORT", 5432),
			User:         r.str("DB_USER", "postgres"),
			Password:     r.str("DB_PASSWORD", ""),
			Name:         r.str("DB_NAME", "ratecache"),
			MaxOpenConns: r.integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: r.integer("DB_MAX_IDLE_CONNS", 5),
			Migrate:      r.flag("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:      r.str("REDIS_ADDR", "localhost:6379"),
			Password:  r.str("REDIS_PASSWORD", ""),
			DB:        r.integer("REDIS_DB", 0),
			KeyPrefix: r.str("REDIS_KEY_PREFIX", "ratecache"),
		},
	}

	if err := errors.Join(append(r.errs, cfg.validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Store != StorePostgres && c.Store != StoreRedis {
		errs = append(errs, fmt.Errorf("invalid RATE_STORE %q: want %s or %s", c.Store, StorePostgres, StoreRedis))
	}
	if len(c.Rates.Base) != 3 {
		errs = append(errs, fmt.Errorf("invalid RATES_BASE %q", c.Rates.Base))
	}
	if c.Rates.FreshFor <= 0 {
		errs = append(errs, fmt.Errorf("RATES_FRESH_FOR must be positive"))
	}
	if c.Rates.RetryInitial <= 0 || c.Rates.RetryMax < c.Rates.RetryInitial {
		errs = append(errs, fmt.Errorf("RATES_RETRY_INITIAL must be positive and not above RATES_RETRY_MAX"))
	}
	return errors.Join(errs...)
}

type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) flag(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}
