package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Concrete go-redis backed Client and constructor.

type Config struct {
	URL            string
	Prefix         string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

type redisClient struct{ rdb *goredis.Client }

func (c redisClient) Subscribe(ctx context.Context, channel string, fn func(string)) (func() error, error) {
	ps := c.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so no event published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	msgs := ps.Channel()

	// go-redis buffers messages, so some may still be queued after Close.
	var stopped atomic.Bool

	go func() {
		for m := range msgs {
			if stopped.Load() {
				continue
			}

			fn(m.Payload)
		}
	}()

	return func() error {
		stopped.Store(true)
		return ps.Close()
	}, nil
}

func (c redisClient) Publish(ctx context.Context, channel, payload string) (int64, error) {
	return c.rdb.Publish(ctx, channel, payload).Result()
}

// NewWithRedis connects to Redis, retrying the initial ping, and returns an Adapter and a cleanup.
func NewWithRedis(ctx context.Context, cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: redis url required", nerr.ErrBridgeNotConfigured)
	}

	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: redis url: %w", nerr.ErrBridgeNotConfigured, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	rdb := goredis.NewClient(opt)

	if err := ping(ctx, rdb, max(cfg.RetryAttempts, 1), cfg.RetryInterval); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("%w: redis not ready: %w", nerr.ErrHostUnreachable, err)
	}

	ad := New(redisClient{rdb: rdb})
	if cfg.Prefix != "" {
		ad.Prefix = cfg.Prefix
	}

	cleanup := func() { _ = rdb.Close() }

	return ad, cleanup, nil
}

func ping(ctx context.Context, rdb *goredis.Client, attempts int, interval time.Duration) error {
	var err error

	for i := range attempts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(interval):
			}
		}

		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
	}

	return err
}
