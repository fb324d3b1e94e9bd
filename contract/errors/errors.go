package errors

import (
	"encoding/json"
	"fmt"
)

// Error codes for the notification handler contracts. Keep stable; used across adapters and the registry.
const (
	ErrCodeNotificationTimeout = "ERR_NOTIFICATION_TIMEOUT"
	ErrCodeDeciderRequired     = "notifications.decider_required"
	ErrCodeDecidePanicked      = "notifications.decide_panicked"
	ErrCodeSubmitFailed        = "notifications.submit_failed"
	ErrCodeHostRejected        = "notifications.host_rejected"
	ErrCodeHostUnreachable     = "notifications.host_unreachable"
	ErrCodeBridgeNotConfigured = "notifications.bridge_not_configured"
	ErrCodeUnknownEvent        = "notifications.unknown_event"
	ErrCodeSerializationFailed = "notifications.serialization_failed"
	ErrCodeSubscribeFailed     = "notifications.subscribe_failed"
	ErrCodeInvalidBehavior     = "notifications.invalid_behavior"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrNotificationTimeout = Code(ErrCodeNotificationTimeout)
	ErrDeciderRequired     = Code(ErrCodeDeciderRequired)
	ErrDecidePanicked      = Code(ErrCodeDecidePanicked)
	ErrSubmitFailed        = Code(ErrCodeSubmitFailed)
	ErrHostRejected        = Code(ErrCodeHostRejected)
	ErrHostUnreachable     = Code(ErrCodeHostUnreachable)
	ErrBridgeNotConfigured = Code(ErrCodeBridgeNotConfigured)
	ErrUnknownEvent        = Code(ErrCodeUnknownEvent)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrInvalidBehavior     = Code(ErrCodeInvalidBehavior)
)

// TimeoutError is reported to a delegate when the host gave up waiting for its decision.
// It matches ErrNotificationTimeout under errors.Is.
type TimeoutError struct {
	ID           string
	Notification json.RawMessage
}

// NewTimeoutError builds a TimeoutError for the given notification.
func NewTimeoutError(id string, notification json.RawMessage) *TimeoutError {
	return &TimeoutError{ID: id, Notification: notification}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Notification handling timed out for ID %s.", e.ID)
}

// Code returns the stable error code carried by every timeout.
func (e *TimeoutError) Code() string { return ErrCodeNotificationTimeout }

func (e *TimeoutError) Is(target error) bool { return target == ErrNotificationTimeout }
