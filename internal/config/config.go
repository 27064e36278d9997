// Package config loads the process configuration from an optional file and
// the environment. Keys nest with dots in files and with underscores in the
// environment: bus.max_attempts is BUS_MAX_ATTEMPTS.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Service       Service       `mapstructure:"service"`
	HTTP          HTTP          `mapstructure:"http"`
	Log           Log           `mapstructure:"log"`
	Bus           Bus           `mapstructure:"bus"`
	Store         Store         `mapstructure:"store"`
	Collaborators Collaborators `mapstructure:"collaborators"`
	Stock         Stock         `mapstructure:"stock"`
	Cart          Cart          `mapstructure:"cart"`
	Payment       Payment       `mapstructure:"payment"`
	Catalog       Catalog       `mapstructure:"catalog"`
}

type Service struct {
	Name string `mapstructure:"name"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type Bus struct {
	// Driver is memory or kafka.
	Driver           string        `mapstructure:"driver"`
	Brokers          []string      `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	DeadLetterSuffix string        `mapstructure:"dead_letter_suffix"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	QueueSize        int           `mapstructure:"queue_size"`
	Concurrency      int           `mapstructure:"concurrency"`
}

type Store struct {
	// Order is memory or postgres.
	Order string `mapstructure:"order"`
	// Cart is memory or mongo.
	Cart string `mapstructure:"cart"`
	// Product is memory or mysql.
	Product string `mapstructure:"product"`
	// Ledger is memory or redis; it also selects the cart version gate.
	Ledger string `mapstructure:"ledger"`
	// Notification is memory or postgres.
	Notification string `mapstructure:"notification"`

	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	MySQLDSN      string        `mapstructure:"mysql_dsn"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	LedgerTTL     time.Duration `mapstructure:"ledger_ttl"`
	// LedgerLease is how long an unfinished stock claim blocks redeliveries.
	LedgerLease time.Duration `mapstructure:"ledger_lease"`
}

type Collaborators struct {
	Cart    Collaborator `mapstructure:"cart"`
	Payment Collaborator `mapstructure:"payment"`
}

// Collaborator is an HTTP peer. An empty BaseURL means the in-process service is called directly.
type Collaborator struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for"`
}

type Stock struct {
	// Recheck refuses a decrement that would oversell instead of flooring stock at zero.
	Recheck bool `mapstructure:"recheck"`
}

type Cart struct {
	SyncParallelism int `mapstructure:"sync_parallelism"`
}

type Payment struct {
	SuccessRate float64 `mapstructure:"success_rate"`
	// Remembered caps the per-order results kept for replaying retried requests.
	Remembered int `mapstructure:"remembered"`
}

type Catalog struct {
	// Seed loads a few demo products at startup when they are missing.
	Seed bool `mapstructure:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "checkout")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("bus.driver", "memory")
	v.SetDefault("bus.brokers", []string{"localhost:9092"})
	v.SetDefault("bus.group_id", "checkout")
	v.SetDefault("bus.dead_letter_suffix", ".dlq")
	v.SetDefault("bus.max_attempts", 5)
	v.SetDefault("bus.initial_backoff", 100*time.Millisecond)
	v.SetDefault("bus.max_backoff", 5*time.Second)
	v.SetDefault("bus.handler_timeout", 30*time.Second)
	v.SetDefault("bus.publish_timeout", 5*time.Second)
	v.SetDefault("bus.queue_size", 1024)
	v.SetDefault("bus.concurrency", 8)

	v.SetDefault("store.order", "memory")
	v.SetDefault("store.cart", "memory")
	v.SetDefault("store.product", "memory")
	v.SetDefault("store.ledger", "memory")
	v.SetDefault("store.notification", "memory")
	v.SetDefault("store.postgres_dsn", "host=localhost port=5432 user=postgres password=postgres dbname=orders sslmode=disable")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "carts")
	v.SetDefault("store.mysql_dsn", "root:root@tcp(localhost:3306)/products?parseTime=true")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.ledger_ttl", 7*24*time.Hour)
	v.SetDefault("store.ledger_lease", 30*time.Second)

	for _, peer := range []string{"cart", "payment"} {
		prefix := "collaborators." + peer + "."
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"timeout", 2*time.Second)
		v.SetDefault(prefix+"max_retries", 2)
		v.SetDefault(prefix+"initial_backoff", 50*time.Millisecond)
		v.SetDefault(prefix+"max_backoff", time.Second)
		v.SetDefault(prefix+"breaker_failures", 5)
		v.SetDefault(prefix+"breaker_open_for", 10*time.Second)
	}

	v.SetDefault("stock.recheck", false)
	v.SetDefault("cart.sync_parallelism", 8)
	v.SetDefault("payment.success_rate", 0.9)
	v.SetDefault("payment.remembered", 10000)
	v.SetDefault("catalog.seed", true)
}

// Validate rejects unknown drivers and out-of-range values.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
	oneOf("bus.driver", c.Bus.Driver, "memory", "kafka")
	oneOf("store.order", c.Store.Order, "memory", "postgres")
	oneOf("store.cart", c.Store.Cart, "memory", "mongo")
	oneOf("store.product", c.Store.Product, "memory", "mysql")
	oneOf("store.ledger", c.Store.Ledger, "memory", "redis")
	oneOf("store.notification", c.Store.Notification, "memory", "postgres")

	if c.Bus.Driver == "kafka" && len(c.Bus.Brokers) == 0 {
		errs = append(errs, errors.New("bus.brokers: required for the kafka driver"))
	}
	if c.Bus.MaxAttempts < 1 {
		errs = append(errs, errors.New("bus.max_attempts: must be at least 1"))
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		errs = append(errs, fmt.Errorf("payment.success_rate: %v is outside [0, 1]", c.Payment.SuccessRate))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr: required"))
	}
	return errors.Join(errs...)
}

// Loader owns the viper instance so the file can be watched after startup.
type Loader struct {
	v   *viper.Viper
	mu  sync.RWMutex
	cfg Config
}

// Load reads defaults, then the file at path (if any), then the environment.
func Load(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch re-reads the config file whenever it changes and hands the new value
// to onChange. Invalid edits are reported through onError and ignored.
// Without a config file Watch does nothing.
func (l *Loader) Watch(onChange func(Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
