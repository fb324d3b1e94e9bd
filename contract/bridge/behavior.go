package bridge

import (
	"fmt"

	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
)

// Priority mirrors the host's notification priority levels. Empty means host default.
type Priority string

const (
	PriorityMin     Priority = "min"
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
	PriorityMax     Priority = "max"
)

// BehaviorDecision tells the host how to present one notification.
type BehaviorDecision struct {
	ShouldShowAlert bool     `json:"shouldShowAlert"`
	ShouldPlaySound bool     `json:"shouldPlaySound"`
	ShouldSetBadge  bool     `json:"shouldSetBadge"`
	Priority        Priority `json:"priority,omitempty"`
}

// Validate rejects priorities the host does not know.
func (b BehaviorDecision) Validate() error {
	switch b.Priority {
	case "", PriorityMin, PriorityLow, PriorityDefault, PriorityHigh, PriorityMax:
		return nil
	default:
		return fmt.Errorf("behavior priority %q: %w", b.Priority, nerr.ErrInvalidBehavior)
	}
}
