package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	"github.com/next-trace/scg-notification-handler/internal/wire"
)

// Client is a minimal Redis Pub/Sub interface decoupled from any concrete library.
type Client interface {
	// Subscribe delivers every payload published on channel to fn, in order, until unsubscribe.
	Subscribe(ctx context.Context, channel string, fn func(payload string)) (unsubscribe func() error, err error)
	// Publish returns the number of subscribers that received the payload.
	Publish(ctx context.Context, channel, payload string) (int64, error)
}

// Adapter implements bridge.Bridge over Redis Pub/Sub.
// A decision that reaches no subscriber means the host is not listening and is reported
// as ErrHostUnreachable.
type Adapter struct {
	Client Client
	Prefix string
	Logger *slog.Logger
}

var _ bridge.Bridge = (*Adapter)(nil)

func New(c Client) *Adapter { return &Adapter{Client: c, Prefix: wire.DefaultPrefix} }

func (a *Adapter) AddListener(event string, fn bridge.Listener) (bridge.Subscription, error) { //nolint:ireturn
	if !bridge.KnownEvent(event) {
		return nil, fmt.Errorf("redis add listener %q: %w", event, nerr.ErrUnknownEvent)
	}

	if a.Client == nil {
		return nil, fmt.Errorf("redis add listener: %w", nerr.ErrBridgeNotConfigured)
	}

	channel := wire.Topic(a.Prefix, event)
	log := a.logger().With("channel", channel)

	var removed atomic.Bool

	unsub, err := a.Client.Subscribe(context.Background(), channel, func(payload string) {
		if removed.Load() {
			return
		}

		ev, derr := wire.DecodeEvent([]byte(payload))
		if derr != nil {
			log.Warn("dropping undecodable notification event", "err", derr)
			return
		}

		fn(context.Background(), ev)
	})
	if err != nil {
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, errors.Join(nerr.ErrSubscribeFailed, err))
	}

	return bridge.NewSubscription(func() {
		removed.Store(true)

		if uerr := unsub(); uerr != nil {
			log.Warn("redis unsubscribe failed", "err", uerr)
		}
	}), nil
}

func (a *Adapter) HandleNotification(ctx context.Context, id string, behavior bridge.BehaviorDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("redis submit: %w", nerr.ErrSubmitFailed)
	}

	body, err := wire.EncodeSubmission(id, behavior)
	if err != nil {
		return fmt.Errorf("redis submit serialize: %w", err)
	}

	receivers, err := a.Client.Publish(ctx, wire.Topic(a.Prefix, bridge.CommandHandleNotification), string(body))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("redis submit publish: %w", errors.Join(nerr.ErrSubmitFailed, err))
	}

	if receivers == 0 {
		return fmt.Errorf("redis submit %s: no host subscribed: %w", id, errors.Join(nerr.ErrSubmitFailed, nerr.ErrHostUnreachable))
	}

	return nil
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.Logger
}
