package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Restaurant RestaurantConfig `mapstructure:"restaurant"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Kitchen    KitchenConfig    `mapstructure:"kitchen"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Catalog    string           `mapstructure:"catalog"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ClientID       string        `mapstructure:"client_id"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	// InitialOffset is "oldest" or "newest".
	InitialOffset string `mapstructure:"initial_offset"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RestaurantConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PaymentMethodConfig struct {
	SuccessRate float64       `mapstructure:"success_rate"`
	Delay       time.Duration `mapstructure:"delay"`
}

type PaymentConfig struct {
	// ProviderMode is "simulated" or "webhook".
	ProviderMode  string                         `mapstructure:"provider_mode"`
	WebhookSecret string                         `mapstructure:"webhook_secret"`
	Methods       map[string]PaymentMethodConfig `mapstructure:"methods"`
}

type KitchenConfig struct {
	MinPrepTime time.Duration `mapstructure:"min_prep_time"`
	MaxPrepTime time.Duration `mapstructure:"max_prep_time"`
}

type DeliveryConfig struct {
	MinETA            time.Duration `mapstructure:"min_eta"`
	MaxETA            time.Duration `mapstructure:"max_eta"`
	AcceptanceTimeout time.Duration `mapstructure:"acceptance_timeout"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	RescanInterval    time.Duration `mapstructure:"rescan_interval"`
	// HeartbeatTimeout marks an on-duty driver stale in the roster.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type SchedulerConfig struct {
	// Backend is "memory" or "redis".
	Backend      string        `mapstructure:"backend"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// EnvPrefix prefixes environment overrides, e.g. FOODSAGA_KAFKA_BROKERS.
const EnvPrefix = "FOODSAGA"

// Load reads path (optional) on top of defaults and environment overrides.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "foodsaga")
	v.SetDefault("database.password", "foodsaga")
	v.SetDefault("database.database", "foodsaga")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "foodsaga")
	v.SetDefault("kafka.session_timeout", "45s")
	v.SetDefault("kafka.initial_offset", "oldest")

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")

	v.SetDefault("log.level", "info")

	v.SetDefault("restaurant.base_url", "http://localhost:3001")
	v.SetDefault("restaurant.timeout", "3s")

	v.SetDefault("payment.provider_mode", "simulated")
	v.SetDefault("payment.methods", map[string]interface{}{
		"card":   map[string]interface{}{"success_rate": 0.95, "delay": "2s"},
		"wallet": map[string]interface{}{"success_rate": 0.98, "delay": "1s"},
		"cash":   map[string]interface{}{"success_rate": 1.0, "delay": "500ms"},
	})

	v.SetDefault("kitchen.min_prep_time", "10s")
	v.SetDefault("kitchen.max_prep_time", "30s")

	v.SetDefault("delivery.min_eta", "20m")
	v.SetDefault("delivery.max_eta", "30m")
	v.SetDefault("delivery.acceptance_timeout", "2m")
	v.SetDefault("delivery.reconcile_interval", "1m")
	v.SetDefault("delivery.rescan_interval", "30s")
	v.SetDefault("delivery.heartbeat_timeout", "60s")

	v.SetDefault("outbox.poll_interval", "500ms")
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("scheduler.backend", "memory")
	v.SetDefault("scheduler.poll_interval", "1s")

	v.SetDefault("catalog", "catalog.yaml")
}

func (c *Config) Validate() error {
	if c.Kitchen.MinPrepTime < 0 || c.Kitchen.MaxPrepTime < c.Kitchen.MinPrepTime {
		return fmt.Errorf("kitchen prep time range is invalid: %s..%s", c.Kitchen.MinPrepTime, c.Kitchen.MaxPrepTime)
	}
	if c.Delivery.MinETA <= 0 || c.Delivery.MaxETA < c.Delivery.MinETA {
		return fmt.Errorf("delivery eta range is invalid: %s..%s", c.Delivery.MinETA, c.Delivery.MaxETA)
	}
	for method, m := range c.Payment.Methods {
		if m.SuccessRate < 0 || m.SuccessRate > 1 {
			return fmt.Errorf("payment method %s success rate must be 0-1", method)
		}
	}
	switch c.Payment.ProviderMode {
	case "simulated", "webhook":
	default:
		return fmt.Errorf("unknown payment provider mode %q", c.Payment.ProviderMode)
	}
	switch c.Scheduler.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown scheduler backend %q", c.Scheduler.Backend)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be positive")
	}
	return nil
}

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		d.Host, d.Port, d.User, d.Password, d.Database, d.MaxConns)
}

// URL builds the AMQP url.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.User, r.Password, r.Host, r.Port)
}
