package wire_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	"github.com/next-trace/scg-notification-handler/internal/wire"
)

func TestTopicAndEventName(t *testing.T) {
	if got := wire.Topic("notifications", bridge.EventHandleNotification); got != "notifications.onHandleNotification" {
		t.Fatalf("topic: %s", got)
	}

	if got := wire.Topic("app.", bridge.CommandHandleNotification); got != "app.handleNotificationAsync" {
		t.Fatalf("topic with trailing dot: %s", got)
	}

	if got := wire.Topic("", bridge.EventHandleNotificationTimeout); got != bridge.EventHandleNotificationTimeout {
		t.Fatalf("empty prefix: %s", got)
	}

	name, ok := wire.EventName("p", "p.onHandleNotificationTimeout")
	if !ok || name != bridge.EventHandleNotificationTimeout {
		t.Fatalf("event name: %q %v", name, ok)
	}

	if _, ok := wire.EventName("p", "p.handleNotificationAsync"); ok {
		t.Fatalf("command topic is not an event")
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := wire.DecodeEvent([]byte(`{"id":"n1","notification":{"title":"hello"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.ID != "n1" || string(ev.Notification) != `{"title":"hello"}` {
		t.Fatalf("event: %+v", ev)
	}

	if _, err := wire.DecodeEvent([]byte(`{"notification":{}}`)); !errors.Is(err, nerr.ErrSerializationFailed) {
		t.Fatalf("missing id: %v", err)
	}

	if _, err := wire.DecodeEvent([]byte(`not json`)); !errors.Is(err, nerr.ErrSerializationFailed) {
		t.Fatalf("bad json: %v", err)
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	in := bridge.HandleEvent{ID: "n9", Notification: []byte(`[1,2]`)}

	b, err := wire.EncodeEvent(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := wire.DecodeEvent(b)
	if err != nil || out.ID != "n9" || string(out.Notification) != `[1,2]` {
		t.Fatalf("round trip: %+v %v", out, err)
	}
}

func TestSubmissionBody(t *testing.T) {
	b, err := wire.EncodeSubmission("n2", bridge.BehaviorDecision{ShouldShowAlert: true, Priority: bridge.PriorityHigh})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := `{"id":"n2","behavior":{"shouldShowAlert":true,"shouldPlaySound":false,"shouldSetBadge":false,"priority":"high"}}`
	if string(b) != want {
		t.Fatalf("body:\n got %s\nwant %s", b, want)
	}

	s, err := wire.DecodeSubmission(b)
	if err != nil || s.ID != "n2" || !s.Behavior.ShouldShowAlert {
		t.Fatalf("decode: %+v %v", s, err)
	}
}

func TestDecodeAck(t *testing.T) {
	if err := wire.DecodeAck(nil); err != nil {
		t.Fatalf("empty ack: %v", err)
	}

	if err := wire.DecodeAck(wire.EncodeAck(nil)); err != nil {
		t.Fatalf("ok ack: %v", err)
	}

	err := wire.DecodeAck(wire.EncodeAck(errors.New("unknown notification")))
	if !errors.Is(err, nerr.ErrHostRejected) {
		t.Fatalf("want ErrHostRejected, got %v", err)
	}

	if err := wire.DecodeAck([]byte("{")); !errors.Is(err, nerr.ErrSerializationFailed) {
		t.Fatalf("bad ack: %v", err)
	}
}
