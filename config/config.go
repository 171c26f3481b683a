package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置，来源优先级：环境变量 VIBEUP_* > config.yaml > 默认值
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Events    EventsConfig    `mapstructure:"events"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Board     BoardConfig     `mapstructure:"board"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type EngineConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type EventsConfig struct {
	Driver   string         `mapstructure:"driver"` // log | kafka | rabbitmq
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type RabbitMQConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

type RelayConfig struct {
	Workers      int           `mapstructure:"workers"`
	Batch        int           `mapstructure:"batch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type BoardConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:vibeup.db?cache=shared&_busy_timeout=5000")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("engine.max_attempts", 4)

	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("events.driver", "log")
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.topic", "vibeup.events")
	v.SetDefault("events.rabbitmq.url", "")
	v.SetDefault("events.rabbitmq.queue", "vibeup.events")

	v.SetDefault("relay.workers", 2)
	v.SetDefault("relay.batch", 64)
	v.SetDefault("relay.poll_interval", 200*time.Millisecond)
	v.SetDefault("relay.max_attempts", 5)

	v.SetDefault("board.workers", 4)
	v.SetDefault("board.queue_size", 10000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "vibeup")

	v.SetDefault("sentry.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load 读取 ./config.yaml 或 ./config/config.yaml（可缺省），并叠加 VIBEUP_ 前缀的环境变量
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom 使用给定 viper 实例加载，便于测试注入
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VIBEUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必须项与取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > 10 {
		return fmt.Errorf("engine.max_attempts must be between 1 and 10, got %d", c.Engine.MaxAttempts)
	}
	switch c.Events.Driver {
	case "log":
	case "kafka":
		if c.Events.Kafka.Brokers == "" || c.Events.Kafka.Topic == "" {
			return errors.New("events.kafka.brokers and events.kafka.topic are required for the kafka driver")
		}
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			return errors.New("events.rabbitmq.url is required for the rabbitmq driver")
		}
	default:
		return fmt.Errorf("events.driver must be log, kafka or rabbitmq, got %q", c.Events.Driver)
	}
	return nil
}
