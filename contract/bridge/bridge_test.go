package bridge_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
)

func TestSubscription_RemoveIsIdempotent(t *testing.T) {
	calls := 0
	sub := bridge.NewSubscription(func() { calls++ })

	sub.Remove()
	sub.Remove()
	sub.Remove()

	if calls != 1 {
		t.Fatalf("release calls=%d", calls)
	}

	// nil release must not panic
	bridge.NewSubscription(nil).Remove()
}

func TestBehaviorDecision_Validate(t *testing.T) {
	tests := []struct {
		p  bridge.Priority
		ok bool
	}{
		{"", true},
		{bridge.PriorityMin, true},
		{bridge.PriorityLow, true},
		{bridge.PriorityDefault, true},
		{bridge.PriorityHigh, true},
		{bridge.PriorityMax, true},
		{"urgent", false},
	}

	for _, tc := range tests {
		err := bridge.BehaviorDecision{Priority: tc.p}.Validate()
		if tc.ok && err != nil {
			t.Fatalf("priority %q: unexpected %v", tc.p, err)
		}

		if !tc.ok && !errors.Is(err, nerr.ErrInvalidBehavior) {
			t.Fatalf("priority %q: want ErrInvalidBehavior, got %v", tc.p, err)
		}
	}
}

func TestNopHeaderPropagator_LeavesHeadersAlone(t *testing.T) {
	h := map[string]string{"notification-id": "n1"}

	var hp bridge.HeaderPropagator = bridge.NopHeaderPropagator{}
	hp.Inject(t.Context(), h)

	if len(h) != 1 || h["notification-id"] != "n1" {
		t.Fatalf("headers changed: %v", h)
	}
}

func TestKnownEvent(t *testing.T) {
	if !bridge.KnownEvent(bridge.EventHandleNotification) || !bridge.KnownEvent(bridge.EventHandleNotificationTimeout) {
		t.Fatalf("inbound events must be known")
	}

	if bridge.KnownEvent(bridge.CommandHandleNotification) || bridge.KnownEvent("") {
		t.Fatalf("command and empty names are not events")
	}
}
