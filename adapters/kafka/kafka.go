package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-notification-handler/adapters/inmemory"
	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	"github.com/next-trace/scg-notification-handler/internal/wire"
)

// ErrClosed is returned by a Reader whose underlying client was closed.
var ErrClosed = errors.New("kafka: reader closed")

// Writer is a minimal Kafka-like writer interface. Write returns once the record is acknowledged.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Record is one consumed message.
type Record struct {
	Topic string
	Key   []byte
	Value []byte
}

// Reader is a minimal Kafka-like consumer. Poll blocks until records arrive or ctx ends.
// It may return records together with a non-fatal error.
type Reader interface {
	Poll(ctx context.Context) ([]Record, error)
}

// Adapter implements bridge.Bridge over Kafka topics.
// One Reader feeds a local listener table; Run must be running for listeners to see events.
type Adapter struct {
	Writer Writer
	Reader Reader
	Prefix string
	Logger *slog.Logger

	listeners inmemory.Emitter
}

var _ bridge.Bridge = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer and reader.
func New(w Writer, r Reader) *Adapter { return &Adapter{Writer: w, Reader: r, Prefix: wire.DefaultPrefix} }

// Topics returns the topics the Reader must consume.
func (a *Adapter) Topics() []string {
	return []string{
		wire.Topic(a.Prefix, bridge.EventHandleNotification),
		wire.Topic(a.Prefix, bridge.EventHandleNotificationTimeout),
	}
}

func (a *Adapter) AddListener(event string, fn bridge.Listener) (bridge.Subscription, error) { //nolint:ireturn
	if a.Reader == nil {
		return nil, fmt.Errorf("kafka add listener: %w", nerr.ErrBridgeNotConfigured)
	}

	sub, err := a.listeners.AddListener(event, fn)
	if err != nil {
		return nil, fmt.Errorf("kafka add listener: %w", err)
	}

	return sub, nil
}

// Run polls the Reader and dispatches events until ctx ends or the Reader is closed.
func (a *Adapter) Run(ctx context.Context) error {
	if a.Reader == nil {
		return fmt.Errorf("kafka run: %w", nerr.ErrBridgeNotConfigured)
	}

	log := a.logger()

	for {
		recs, err := a.Reader.Poll(ctx)

		for _, rec := range recs {
			a.dispatch(ctx, rec)
		}

		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}

			log.Warn("kafka poll failed", "err", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, rec Record) {
	name, ok := wire.EventName(a.Prefix, rec.Topic)
	if !ok {
		a.logger().Warn("dropping record from unexpected topic", "topic", rec.Topic)
		return
	}

	ev, err := wire.DecodeEvent(rec.Value)
	if err != nil {
		a.logger().Warn("dropping undecodable notification event", "topic", rec.Topic, "err", err)
		return
	}

	a.listeners.Emit(ctx, name, ev)
}

func (a *Adapter) HandleNotification(ctx context.Context, id string, behavior bridge.BehaviorDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka submit: %w", nerr.ErrSubmitFailed)
	}

	val, err := wire.EncodeSubmission(id, behavior)
	if err != nil {
		return fmt.Errorf("kafka submit serialize: %w", err)
	}

	topic := wire.Topic(a.Prefix, bridge.CommandHandleNotification)

	if err = a.Writer.Write(ctx, topic, []byte(id), val, map[string]string{"notification-id": id}); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka submit write: %w", errors.Join(nerr.ErrSubmitFailed, err))
	}

	return nil
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.Logger
}
