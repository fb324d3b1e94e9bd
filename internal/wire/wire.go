// Package wire holds the JSON shapes exchanged with the host over message transports
// and the naming scheme for subjects, topics, routing keys and channels.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
)

// DefaultPrefix namespaces every destination when no prefix is configured.
const DefaultPrefix = "notifications"

// Submission is the body of the handleNotificationAsync command.
type Submission struct {
	ID       string                  `json:"id"`
	Behavior bridge.BehaviorDecision `json:"behavior"`
}

// Ack is the host's reply to a submission. A non-empty Error is a rejection.
type Ack struct {
	Error string `json:"error,omitempty"`
}

// Topic joins prefix and name into a destination name.
func Topic(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return name
	}

	return prefix + "." + name
}

// EventName maps a destination back to its inbound event name.
func EventName(prefix, topic string) (string, bool) {
	for _, name := range []string{bridge.EventHandleNotification, bridge.EventHandleNotificationTimeout} {
		if Topic(prefix, name) == topic {
			return name, true
		}
	}

	return "", false
}

func EncodeEvent(ev bridge.HandleEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Join(nerr.ErrSerializationFailed, err)
	}

	return b, nil
}

// DecodeEvent parses an inbound event. Events without an id cannot be routed and are rejected.
func DecodeEvent(data []byte) (bridge.HandleEvent, error) {
	var ev bridge.HandleEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return bridge.HandleEvent{}, errors.Join(nerr.ErrSerializationFailed, err)
	}

	if ev.ID == "" {
		return bridge.HandleEvent{}, fmt.Errorf("event without id: %w", nerr.ErrSerializationFailed)
	}

	return ev, nil
}

func EncodeSubmission(id string, behavior bridge.BehaviorDecision) ([]byte, error) {
	b, err := json.Marshal(Submission{ID: id, Behavior: behavior})
	if err != nil {
		return nil, errors.Join(nerr.ErrSerializationFailed, err)
	}

	return b, nil
}

func DecodeSubmission(data []byte) (Submission, error) {
	var s Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return Submission{}, errors.Join(nerr.ErrSerializationFailed, err)
	}

	return s, nil
}

// EncodeAck builds the reply a host sends for a submission; nil err acknowledges it.
func EncodeAck(err error) []byte {
	a := Ack{}
	if err != nil {
		a.Error = err.Error()
	}

	b, _ := json.Marshal(a) //nolint:errcheck // a struct of one string always marshals

	return b
}

// DecodeAck turns a host reply into nil (acknowledged) or an error wrapping ErrHostRejected.
// An empty body acknowledges.
func DecodeAck(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var a Ack
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.Join(nerr.ErrSerializationFailed, err)
	}

	if a.Error != "" {
		return fmt.Errorf("host: %s: %w", a.Error, nerr.ErrHostRejected)
	}

	return nil
}
