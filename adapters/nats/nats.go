package nats

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

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Subscribe delivers every message on subject to fn, one at a time, in arrival order.
	Subscribe(subject string, fn func(data []byte)) (unsubscribe func() error, err error)
	// Request sends data to subject and waits for the single reply.
	Request(ctx context.Context, subject string, data []byte, headers map[string]string) ([]byte, error)
}

// Adapter implements bridge.Bridge using an injected NATS-like Client.
// Events arrive on <prefix>.<event> subjects; decisions are sent as requests to
// <prefix>.handleNotificationAsync and the host's reply acknowledges or rejects them.
type Adapter struct {
	Client     Client
	Prefix     string
	Propagator bridge.HeaderPropagator // optional, for context propagation into headers
	Logger     *slog.Logger
}

// Ensure Adapter implements the combined contract.
var _ bridge.Bridge = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter {
	return &Adapter{Client: c, Prefix: wire.DefaultPrefix, Propagator: bridge.NopHeaderPropagator{}}
}

func (a *Adapter) AddListener(event string, fn bridge.Listener) (bridge.Subscription, error) { //nolint:ireturn
	if !bridge.KnownEvent(event) {
		return nil, fmt.Errorf("nats add listener %q: %w", event, nerr.ErrUnknownEvent)
	}

	if a.Client == nil {
		return nil, fmt.Errorf("nats add listener: %w", nerr.ErrBridgeNotConfigured)
	}

	subject := wire.Topic(a.Prefix, event)
	log := a.logger().With("subject", subject)

	var removed atomic.Bool

	unsub, err := a.Client.Subscribe(subject, func(data []byte) {
		if removed.Load() {
			return
		}

		ev, derr := wire.DecodeEvent(data)
		if derr != nil {
			log.Warn("dropping undecodable notification event", "err", derr)
			return
		}

		fn(context.Background(), ev)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, errors.Join(nerr.ErrSubscribeFailed, err))
	}

	return bridge.NewSubscription(func() {
		removed.Store(true)

		if uerr := unsub(); uerr != nil {
			log.Warn("nats unsubscribe failed", "err", uerr)
		}
	}), nil
}

func (a *Adapter) HandleNotification(ctx context.Context, id string, behavior bridge.BehaviorDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats submit: %w", nerr.ErrSubmitFailed)
	}

	body, err := wire.EncodeSubmission(id, behavior)
	if err != nil {
		return fmt.Errorf("nats submit serialize: %w", err)
	}

	headers := map[string]string{"notification-id": id}
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	subject := wire.Topic(a.Prefix, bridge.CommandHandleNotification)

	reply, err := a.Client.Request(ctx, subject, body, headers)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats submit request: %w", errors.Join(nerr.ErrSubmitFailed, err))
	}

	if err := wire.DecodeAck(reply); err != nil {
		return fmt.Errorf("nats submit %s: %w", id, err)
	}

	return nil
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.Logger
}
