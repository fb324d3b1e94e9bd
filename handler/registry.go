package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
)

// Decider decides how the host should present one notification.
// Implementations may block; each notification is decided on its own goroutine.
type Decider interface {
	Decide(ctx context.Context, n bridge.Notification) (bridge.BehaviorDecision, error)
}

// DeciderFunc adapts a plain function to Decider.
type DeciderFunc func(ctx context.Context, n bridge.Notification) (bridge.BehaviorDecision, error)

func (f DeciderFunc) Decide(ctx context.Context, n bridge.Notification) (bridge.BehaviorDecision, error) {
	return f(ctx, n)
}

// Delegate is the application-supplied capability set. Decider is required;
// OnSuccess and OnFailure are optional and skipped when nil.
type Delegate struct {
	Decider   Decider
	OnSuccess func(id string)
	OnFailure func(err error)
}

// Registry binds at most one Delegate to a bridge at a time.
//
// Registry is safe for concurrent use and contains no global state.
type Registry struct {
	mu sync.Mutex

	bridge  bridge.Bridge
	current *binding
	subs    []bridge.Subscription
	closed  bool

	// gate orders listener admission against release; inflight.Add only happens under it.
	gate     sync.RWMutex
	inflight sync.WaitGroup
	logger   *slog.Logger
}

// binding is the delegate of one SetDelegate call and whether its listeners still admit events.
type binding struct {
	delegate Delegate
	active   bool // guarded by Registry.gate
}

// New constructs a Registry over b. A nil logger discards output.
func New(b bridge.Bridge, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Registry{bridge: b, logger: logger}
}

// SetDelegate replaces the active delegate. The previous delegate's subscriptions are
// released before any new subscription is created. Handlings already in flight keep
// reporting to the delegate that was active when their event arrived.
func (r *Registry) SetDelegate(d Delegate) error {
	if d.Decider == nil {
		return fmt.Errorf("set delegate: %w", nerr.ErrDeciderRequired)
	}

	if r.bridge == nil {
		return fmt.Errorf("set delegate: %w", nerr.ErrBridgeNotConfigured)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked()
	r.closed = false

	b := &binding{delegate: d, active: true}

	handleSub, err := r.bridge.AddListener(bridge.EventHandleNotification, r.handleListener(b))
	if err != nil {
		r.deactivate(b)
		return fmt.Errorf("set delegate: subscribe %s: %w", bridge.EventHandleNotification, err)
	}

	timeoutSub, err := r.bridge.AddListener(bridge.EventHandleNotificationTimeout, r.timeoutListener(b))
	if err != nil {
		r.deactivate(b)
		handleSub.Remove()
		return fmt.Errorf("set delegate: subscribe %s: %w", bridge.EventHandleNotificationTimeout, err)
	}

	r.subs = []bridge.Subscription{handleSub, timeoutSub}
	r.current = b

	r.logger.Info("notification delegate set")

	return nil
}

// CurrentDelegate returns the active delegate, if any.
func (r *Registry) CurrentDelegate() (Delegate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return Delegate{}, false
	}

	return r.current.delegate, true
}

// Close releases the active subscriptions and waits for in-flight handlings to finish.
// It is safe to call more than once, but not from inside a delegate callback.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}

	r.closed = true
	r.releaseLocked()
	r.mu.Unlock()

	r.inflight.Wait()

	return nil
}

// Wait blocks until every handling started so far has reported its outcome.
// Call it once the host has stopped delivering events, or after Close.
func (r *Registry) Wait() { r.inflight.Wait() }

func (r *Registry) releaseLocked() {
	if len(r.subs) > 0 {
		r.logger.Debug("releasing notification delegate subscriptions", "count", len(r.subs))
	}

	if r.current != nil {
		r.deactivate(r.current)
	}

	for _, s := range r.subs {
		s.Remove()
	}

	r.subs = nil
	r.current = nil
}

func (r *Registry) deactivate(b *binding) {
	r.gate.Lock()
	b.active = false
	r.gate.Unlock()
}

// admit registers one handling for b, unless b was released meanwhile.
func (r *Registry) admit(b *binding, id string) bool {
	r.gate.RLock()
	defer r.gate.RUnlock()

	if !b.active {
		r.logger.Debug("dropping event for released delegate", "id", id)
		return false
	}

	r.inflight.Add(1)

	return true
}

func (r *Registry) handleListener(b *binding) bridge.Listener {
	return func(ctx context.Context, ev bridge.HandleEvent) {
		if !r.admit(b, ev.ID) {
			return
		}

		go func() {
			defer r.inflight.Done()
			r.handle(context.WithoutCancel(ctx), &b.delegate, ev)
		}()
	}
}

func (r *Registry) timeoutListener(b *binding) bridge.Listener {
	return func(_ context.Context, ev bridge.HandleEvent) {
		if !r.admit(b, ev.ID) {
			return
		}
		defer r.inflight.Done()

		r.logger.Debug("notification handling timed out", "id", ev.ID)
		r.fail(&b.delegate, ev.ID, nerr.NewTimeoutError(ev.ID, ev.Notification))
	}
}

func (r *Registry) handle(ctx context.Context, d *Delegate, ev bridge.HandleEvent) {
	log := r.logger.With("id", ev.ID)
	log.Debug("handling notification")

	behavior, err := decide(ctx, d.Decider, ev.Notification)
	if err != nil {
		r.fail(d, ev.ID, err)
		return
	}

	if err := r.bridge.HandleNotification(ctx, ev.ID, behavior); err != nil {
		r.fail(d, ev.ID, err)
		return
	}

	log.Debug("notification handled")

	if d.OnSuccess != nil {
		d.OnSuccess(ev.ID)
	}
}

func (r *Registry) fail(d *Delegate, id string, err error) {
	if d.OnFailure == nil {
		r.logger.Debug("notification handling failed", "id", id, "err", err)
		return
	}

	d.OnFailure(err)
}

func decide(ctx context.Context, dc Decider, n bridge.Notification) (b bridge.BehaviorDecision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decide: %v: %w", p, nerr.ErrDecidePanicked)
			if pe, ok := p.(error); ok {
				err = fmt.Errorf("decide: %w", errors.Join(nerr.ErrDecidePanicked, pe))
			}
		}
	}()

	return dc.Decide(ctx, n)
}
