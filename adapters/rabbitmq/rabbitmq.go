package rabbitmq

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

// DefaultExchange is the topic exchange shared with the host.
const DefaultExchange = "notifications"

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Publisher sends one message and returns once the broker confirmed it.
type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Consumer delivers every message routed with routingKey to fn until cancel is called.
type Consumer interface {
	Consume(ctx context.Context, exchange, routingKey string, fn func(body []byte)) (cancel func() error, err error)
}

type Adapter struct {
	Publisher  Publisher
	Consumer   Consumer
	Exchange   string
	Prefix     string
	Propagator bridge.HeaderPropagator // optional, for context propagation into headers
	Logger     *slog.Logger
}

var _ bridge.Bridge = (*Adapter)(nil)

func New(p Publisher, c Consumer) *Adapter {
	return &Adapter{
		Publisher:  p,
		Consumer:   c,
		Exchange:   DefaultExchange,
		Prefix:     wire.DefaultPrefix,
		Propagator: bridge.NopHeaderPropagator{},
	}
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, c Consumer, hp bridge.HeaderPropagator) *Adapter {
	a := New(p, c)
	a.Propagator = hp

	return a
}

func (a *Adapter) AddListener(event string, fn bridge.Listener) (bridge.Subscription, error) { //nolint:ireturn
	if !bridge.KnownEvent(event) {
		return nil, fmt.Errorf("rabbitmq add listener %q: %w", event, nerr.ErrUnknownEvent)
	}

	if a.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq add listener: %w", nerr.ErrBridgeNotConfigured)
	}

	rk := wire.Topic(a.Prefix, event)
	log := a.logger().With("routing_key", rk)

	var removed atomic.Bool

	cancel, err := a.Consumer.Consume(context.Background(), a.Exchange, rk, func(body []byte) {
		if removed.Load() {
			return
		}

		ev, derr := wire.DecodeEvent(body)
		if derr != nil {
			log.Warn("dropping undecodable notification event", "err", derr)
			return
		}

		fn(context.Background(), ev)
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", rk, errors.Join(nerr.ErrSubscribeFailed, err))
	}

	return bridge.NewSubscription(func() {
		removed.Store(true)

		if cerr := cancel(); cerr != nil {
			log.Warn("rabbitmq cancel consumer failed", "err", cerr)
		}
	}), nil
}

func (a *Adapter) HandleNotification(ctx context.Context, id string, behavior bridge.BehaviorDecision) error {
	if err := a.ready(ctx); err != nil {
		return err
	}

	body, err := wire.EncodeSubmission(id, behavior)
	if err != nil {
		return fmt.Errorf("rabbitmq submit serialize: %w", err)
	}

	args := &publishArgs{
		exchange:   a.Exchange,
		routingKey: wire.Topic(a.Prefix, bridge.CommandHandleNotification),
		body:       body,
		headers:    map[string]string{"notification-id": id},
	}

	return a.publish(ctx, args)
}

// internal helpers

type publishArgs struct {
	exchange   string
	routingKey string
	body       []byte
	headers    map[string]string
}

func (a *Adapter) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq submit: %w", nerr.ErrSubmitFailed)
	}

	return nil
}

func (a *Adapter) publish(ctx context.Context, args *publishArgs) error {
	// copy headers to avoid mutating caller-provided map
	hdrs := make(map[string]string, len(args.headers)+4)
	for k, v := range args.headers {
		hdrs[k] = v
	}
	// Inject tracing context via configured propagator (keeps adapter decoupled)
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	msg := PubMsg{
		Exchange:   args.exchange,
		RoutingKey: args.routingKey,
		Body:       args.body,
		Headers:    hdrs,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq submit publish: %w", errors.Join(nerr.ErrSubmitFailed, err))
	}

	return nil
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.Logger
}
