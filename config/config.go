// Package config loads the transport settings of the notification handler from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transports served by bootstrap.Open.
const (
	TransportMemory   = "memory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
)

type Config struct {
	Transport string `env:"NOTIFY_TRANSPORT" envDefault:"memory"`
	Prefix    string `env:"NOTIFY_PREFIX" envDefault:"notifications"`
	LogLevel  string `env:"NOTIFY_LOG_LEVEL" envDefault:"info"`

	NATS  NATSConfig  `envPrefix:"NOTIFY_NATS_"`
	AMQP  AMQPConfig  `envPrefix:"NOTIFY_AMQP_"`
	Kafka KafkaConfig `envPrefix:"NOTIFY_KAFKA_"`
	Redis RedisConfig `envPrefix:"NOTIFY_REDIS_"`
}

type NATSConfig struct {
	URL            string        `env:"URL"`
	Name           string        `env:"NAME"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	MaxReconnects  int           `env:"MAX_RECONNECTS" envDefault:"60"`
}

type AMQPConfig struct {
	URL            string        `env:"URL"`
	Exchange       string        `env:"EXCHANGE" envDefault:"notifications"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

type KafkaConfig struct {
	Brokers     []string `env:"BROKERS" envSeparator:","`
	ClientID    string   `env:"CLIENT_ID"`
	Group       string   `env:"GROUP"`
	Acks        string   `env:"ACKS" envDefault:"all"`
	Compression string   `env:"COMPRESSION"`
}

type RedisConfig struct {
	URL            string        `env:"URL"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
}

// Load reads .env (when present) and the process environment, then validates the result.
func Load() (Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	return cfg, cfg.Validate()
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected transport is known and reachable by configuration.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	switch c.Transport {
	case TransportMemory:
		return nil
	case TransportNATS:
		return requireEndpoint(c.Transport, c.NATS.URL != "")
	case TransportRabbitMQ:
		return requireEndpoint(c.Transport, c.AMQP.URL != "")
	case TransportKafka:
		return requireEndpoint(c.Transport, len(c.Kafka.Brokers) > 0)
	case TransportRedis:
		return requireEndpoint(c.Transport, c.Redis.URL != "")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
}

// Level returns LogLevel as a slog level.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Join(ErrInvalidLogLevel, err)
	}

	return lvl, nil
}

func requireEndpoint(transport string, ok bool) error {
	if ok {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrMissingEndpoint, transport)
}
