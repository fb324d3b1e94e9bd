package inmemory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
)

// Emitter is a thread-safe in-process implementation of bridge.Emitter.
// The zero value is ready to use. Emit plays the role of the host delivering an event.
type Emitter struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[string][]*entry
}

type entry struct {
	id      uint64
	fn      bridge.Listener
	removed atomic.Bool
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) AddListener(event string, fn bridge.Listener) (bridge.Subscription, error) { //nolint:ireturn
	if !bridge.KnownEvent(event) {
		return nil, fmt.Errorf("add listener %q: %w", event, nerr.ErrUnknownEvent)
	}

	if fn == nil {
		return nil, fmt.Errorf("add listener %q: nil listener: %w", event, nerr.ErrSubscribeFailed)
	}

	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = make(map[string][]*entry)
	}

	e.seq++
	ent := &entry{id: e.seq, fn: fn}
	e.listeners[event] = append(e.listeners[event], ent)
	e.mu.Unlock()

	return bridge.NewSubscription(func() { e.remove(event, ent) }), nil
}

func (e *Emitter) remove(event string, ent *entry) {
	ent.removed.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[event]
	for i, cur := range list {
		if cur.id == ent.id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Emit delivers ev to every listener of event in registration order and returns how many
// listeners were invoked. Listeners removed while the delivery is running are skipped.
func (e *Emitter) Emit(ctx context.Context, event string, ev bridge.HandleEvent) int {
	e.mu.RLock()
	entries := append([]*entry(nil), e.listeners[event]...)
	e.mu.RUnlock()

	n := 0

	for _, ent := range entries {
		if ent.removed.Load() {
			continue
		}

		ent.fn(ctx, ev)
		n++
	}

	return n
}

// Listeners returns the number of active listeners for event.
func (e *Emitter) Listeners(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.listeners[event])
}

// Submission records one handleNotificationAsync call.
type Submission struct {
	ID       string
	Behavior bridge.BehaviorDecision
}

// Submitter is a thread-safe in-memory implementation of bridge.Submitter.
// It records every call. Err, or ErrFunc when set, simulates the host rejecting a decision.
type Submitter struct {
	mu          sync.Mutex
	submissions []Submission

	Err     error
	ErrFunc func(id string, behavior bridge.BehaviorDecision) error
}

func (s *Submitter) HandleNotification(ctx context.Context, id string, behavior bridge.BehaviorDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{ID: id, Behavior: behavior})
	errFn, err := s.ErrFunc, s.Err
	s.mu.Unlock()

	if errFn != nil {
		return errFn(id, behavior)
	}

	return err
}

// Submissions returns a copy of the recorded calls in arrival order.
func (s *Submitter) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Submission(nil), s.submissions...)
}

// Bridge combines Emitter and Submitter to satisfy bridge.Bridge.
type Bridge struct {
	Emitter
	Submitter
}

// Ensure Bridge implements the combined contract.
var _ bridge.Bridge = (*Bridge)(nil)

// New creates a new in-memory bridge instance.
func New() *Bridge { return &Bridge{} }
