package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed constructor and publisher/consumer wrapper with auto-reconnect.

const (
	exchangeKind       = "topic"
	defaultConnTimeout = 10 * time.Second
)

type Config struct {
	URL         string
	Exchange    string
	Prefix      string
	ConnTimeout time.Duration // also bounds how long Consume and Publish wait for a connection
	Logger      *slog.Logger
}

// openFunc starts one consumer on the current connection and returns its cancel.
type openFunc func(exchange, routingKey string, fn func([]byte)) (func() error, error)

type reconnectingConn struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed once the first channel is ready
	once   sync.Once

	open openFunc

	cmu       sync.Mutex
	seq       uint64
	consumers map[uint64]*consumer
}

// consumer is one listener registration. It survives reconnects: after each new connection
// it is declared, bound and consumed again until cancelled.
type consumer struct {
	exchange   string
	routingKey string
	fn         func([]byte)

	mu      sync.Mutex
	stop    func() error
	stopped bool
}

func (c *consumer) deliver(body []byte) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()

	if !stopped {
		c.fn(body)
	}
}

func (c *consumer) cancel() error {
	c.mu.Lock()
	c.stopped = true
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}

	return stop()
}

func newReconnectingConn(cfg Config) (*reconnectingConn, func()) {
	rc := newConn(cfg)
	rc.open = rc.openOnCurrent
	go rc.run()
	cleanup := func() { rc.close() }
	return rc, cleanup
}

func newConn(cfg Config) *reconnectingConn {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = defaultConnTimeout
	}

	return &reconnectingConn{
		cfg:       cfg,
		log:       log,
		closed:    make(chan struct{}),
		ready:     make(chan struct{}),
		consumers: make(map[uint64]*consumer),
	}
}

// wait blocks until a channel is available, ctx ends, or ConnTimeout passes without a connection.
func (rc *reconnectingConn) wait(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timer := time.NewTimer(rc.cfg.ConnTimeout)
	defer timer.Stop()

	select {
	case <-rc.ready:
	case <-rc.closed:
		return nil, nil, fmt.Errorf("%w: rabbitmq connection closed", nerr.ErrHostUnreachable)
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w: rabbitmq not connected within %s", nerr.ErrHostUnreachable, rc.cfg.ConnTimeout)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()

	if rc.conn == nil || rc.ch == nil {
		return nil, nil, fmt.Errorf("%w: rabbitmq not connected", nerr.ErrHostUnreachable)
	}

	return rc.conn, rc.ch, nil
}

func (rc *reconnectingConn) Publish(ctx context.Context, m PubMsg) error {
	_, ch, err := rc.wait(ctx)
	if err != nil {
		return err
	}

	return publishConfirmed(ctx, ch, m)
}

// Consume registers a consumer and starts it on a dedicated channel. The consumer is
// restarted on every reconnect until the returned cancel is called.
func (rc *reconnectingConn) Consume(ctx context.Context, exchange, routingKey string, fn func([]byte)) (func() error, error) {
	if _, _, err := rc.wait(ctx); err != nil {
		return nil, err
	}

	c := &consumer{exchange: exchange, routingKey: routingKey, fn: fn}

	rc.cmu.Lock()
	rc.seq++
	id := rc.seq
	rc.consumers[id] = c
	rc.cmu.Unlock()

	if err := rc.attach(c); err != nil {
		rc.forget(id)
		return nil, err
	}

	return func() error {
		rc.forget(id)
		return c.cancel()
	}, nil
}

func (rc *reconnectingConn) forget(id uint64) {
	rc.cmu.Lock()
	delete(rc.consumers, id)
	rc.cmu.Unlock()
}

// attach starts c on the current connection, replacing whatever it was consuming before.
func (rc *reconnectingConn) attach(c *consumer) error {
	stop, err := rc.open(c.exchange, c.routingKey, c.deliver)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return stop()
	}

	prev := c.stop
	c.stop = stop
	c.mu.Unlock()

	if prev != nil {
		// the previous channel usually died with its connection
		_ = prev()
	}

	return nil
}

// resubscribe restarts every registered consumer on the current connection.
func (rc *reconnectingConn) resubscribe() {
	rc.cmu.Lock()
	list := make([]*consumer, 0, len(rc.consumers))
	for _, c := range rc.consumers {
		list = append(list, c)
	}
	rc.cmu.Unlock()

	for _, c := range list {
		if err := rc.attach(c); err != nil {
			rc.log.Warn("rabbitmq consumer not restored", "routing_key", c.routingKey, "err", err)
		}
	}

	if len(list) > 0 {
		rc.log.Info("rabbitmq consumers restored after reconnect", "count", len(list))
	}
}

func (rc *reconnectingConn) openOnCurrent(exchange, routingKey string, fn func([]byte)) (func() error, error) {
	rc.mu.RLock()
	conn := rc.conn
	rc.mu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("%w: rabbitmq not connected", nerr.ErrHostUnreachable)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	cancel, err := consumeOn(ch, exchange, routingKey, fn)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return func() error { return errors.Join(cancel(), ch.Close()) }, nil
}

func (rc *reconnectingConn) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter
	connected := false

	reconnect := func() (*amqp.Connection, *amqp.Channel, error) {
		conn, err := amqp.DialConfig(rc.cfg.URL, amqp.Config{
			Locale:     "en_US",
			Properties: amqp.Table{"product": "scg-notification-handler"},
			Dial:       amqp.DefaultDial(rc.cfg.ConnTimeout),
		})
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		if err := ch.ExchangeDeclare(rc.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, err
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, err
		}
		return conn, ch, nil
	}

	for {
		select {
		case <-rc.closed:
			return
		default:
		}

		conn, ch, err := reconnect()
		if err != nil {
			rc.log.Debug("rabbitmq dial failed", "err", err, "backoff", backoff)
			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := backoff + jitter/2
			if sleep > maxBackoff {
				sleep = maxBackoff
			}
			t := time.NewTimer(sleep)
			select {
			case <-rc.closed:
				t.Stop()
				return
			case <-t.C:
			}
			if backoff < maxBackoff {
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		// success
		backoff = time.Second

		rc.mu.Lock()
		rc.conn = conn
		rc.ch = ch
		rc.mu.Unlock()
		rc.once.Do(func() { close(rc.ready) })

		if connected {
			rc.resubscribe()
		}

		connected = true

		// Block on connection close notifications to trigger reconnect
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rc.closed:
			return
		case cerr := <-notify:
			rc.log.Warn("rabbitmq connection lost", "err", cerr)
			rc.mu.Lock()
			rc.conn, rc.ch = nil, nil
			rc.mu.Unlock()
			_ = ch.Close()
			_ = conn.Close()
			// loop to reconnect
		}
	}
}

func (rc *reconnectingConn) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	select {
	case <-rc.closed:
		// already closed
		return
	default:
		close(rc.closed)
	}
	if rc.ch != nil {
		_ = rc.ch.Close()
		rc.ch = nil
	}
	if rc.conn != nil {
		_ = rc.conn.Close()
		rc.conn = nil
	}
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, ensures the exchange, and returns Adapter and cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", nerr.ErrBridgeNotConfigured)
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	rc, cleanup := newReconnectingConn(cfg)
	ad := New(rc, rc)
	ad.Exchange = cfg.Exchange
	ad.Logger = cfg.Logger
	if cfg.Prefix != "" {
		ad.Prefix = cfg.Prefix
	}
	return ad, cleanup, nil
}

type amqpChannelBridge struct{ ch *amqp.Channel }

func (b amqpChannelBridge) Publish(ctx context.Context, m PubMsg) error {
	return publishConfirmed(ctx, b.ch, m)
}

func (b amqpChannelBridge) Consume(_ context.Context, exchange, routingKey string, fn func([]byte)) (func() error, error) {
	return consumeOn(b.ch, exchange, routingKey, fn)
}

// NewWithAMQPChannel uses a caller-owned channel for both directions. Put the channel in
// confirm mode first if submissions should wait for broker confirms.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	b := amqpChannelBridge{ch: ch}
	return New(b, b)
}

func publishConfirmed(ctx context.Context, ch *amqp.Channel, m PubMsg) error {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Headers:      h,
			ContentType:  "application/json",
			Body:         m.Body,
		},
	)
	if err != nil {
		return err
	}

	// nil when the channel is not in confirm mode
	if dc == nil {
		return nil
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}

	if !acked {
		return fmt.Errorf("%w: broker nacked %s", nerr.ErrHostRejected, m.RoutingKey)
	}

	return nil
}

func consumeOn(ch *amqp.Channel, exchange, routingKey string, fn func([]byte)) (func() error, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return nil, err
	}

	tag := "notification-handler-" + uuid.NewString()

	deliveries, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	var stopped atomic.Bool

	go func() {
		for d := range deliveries {
			if stopped.Load() {
				continue
			}

			fn(d.Body)
		}
	}()

	return func() error {
		stopped.Store(true)
		return ch.Cancel(tag, false)
	}, nil
}
