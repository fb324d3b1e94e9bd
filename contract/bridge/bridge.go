package bridge

import (
	"context"
	"encoding/json"
)

// Names the host notification service uses for its two inbound events and its one command.
const (
	EventHandleNotification        = "onHandleNotification"
	EventHandleNotificationTimeout = "onHandleNotificationTimeout"
	CommandHandleNotification      = "handleNotificationAsync"
)

// Notification is the host's payload for a single notification instance.
// It is passed through unexamined.
type Notification = json.RawMessage

// HandleEvent is the payload of both inbound events.
type HandleEvent struct {
	ID           string       `json:"id"`
	Notification Notification `json:"notification"`
}

// Listener receives one inbound event. Listeners on a single subscription are invoked
// in the order the host delivers events.
type Listener func(ctx context.Context, ev HandleEvent)

// Emitter exposes the host's event stream.
// Every AddListener call yields an independent Subscription, even for the same event name.
type Emitter interface {
	AddListener(event string, fn Listener) (Subscription, error)
}

// Submitter carries the handleNotificationAsync command back to the host.
// It returns nil once the host acknowledged the decision.
type Submitter interface {
	HandleNotification(ctx context.Context, id string, behavior BehaviorDecision) error
}

// Bridge is the full link to the host notification service.
// Any adapter that implements both Emitter and Submitter can back a handler.Registry.
type Bridge interface {
	Emitter
	Submitter
}

// KnownEvent reports whether name is one of the inbound event names.
func KnownEvent(name string) bool {
	return name == EventHandleNotification || name == EventHandleNotificationTimeout
}
