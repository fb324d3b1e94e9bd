// Package bootstrap opens the bridge selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-notification-handler/adapters/inmemory"
	"github.com/next-trace/scg-notification-handler/adapters/kafka"
	"github.com/next-trace/scg-notification-handler/adapters/nats"
	"github.com/next-trace/scg-notification-handler/adapters/rabbitmq"
	"github.com/next-trace/scg-notification-handler/adapters/redis"
	"github.com/next-trace/scg-notification-handler/config"
	"github.com/next-trace/scg-notification-handler/contract/bridge"
)

// Open builds the bridge for cfg.Transport. The cleanup closes the transport and must be
// called once the registry using the bridge has been closed.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (bridge.Bridge, func(), error) { //nolint:ireturn
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("open bridge: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger = logger.With("transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportNATS:
		ad, cleanup, err := nats.NewWithNATS(nats.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			Prefix:        cfg.Prefix,
			ConnTimeout:   cfg.NATS.ConnectTimeout,
			MaxReconnects: cfg.NATS.MaxReconnects,
		})
		if err != nil {
			return nil, nil, err
		}

		ad.Logger = logger

		return ad, cleanup, nil
	case config.TransportRabbitMQ:
		ad, cleanup, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         cfg.AMQP.URL,
			Exchange:    cfg.AMQP.Exchange,
			Prefix:      cfg.Prefix,
			ConnTimeout: cfg.AMQP.ConnectTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}

		ad.Logger = logger

		return ad, cleanup, nil
	case config.TransportKafka:
		return openKafka(ctx, cfg, logger)
	case config.TransportRedis:
		ad, cleanup, err := redis.NewWithRedis(ctx, redis.Config{
			URL:            cfg.Redis.URL,
			Prefix:         cfg.Prefix,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}

		ad.Logger = logger

		return ad, cleanup, nil
	default:
		return inmemory.New(), func() {}, nil
	}
}

func openKafka(ctx context.Context, cfg config.Config, logger *slog.Logger) (bridge.Bridge, func(), error) { //nolint:ireturn
	ad, closeClient, err := kafka.NewWithKgo(kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		ClientID:    cfg.Kafka.ClientID,
		Group:       cfg.Kafka.Group,
		Prefix:      cfg.Prefix,
		Acks:        cfg.Kafka.Acks,
		Compression: cfg.Kafka.Compression,
	})
	if err != nil {
		return nil, nil, err
	}

	ad.Logger = logger

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := ad.Run(runCtx); err != nil {
			logger.Error("kafka poll loop stopped", "err", err)
		}
	}()

	cleanup := func() {
		cancel()
		closeClient()
		wg.Wait()
	}

	return ad, cleanup, nil
}
