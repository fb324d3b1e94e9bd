package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-notification-handler/adapters/kafka"
	"github.com/next-trace/scg-notification-handler/contract/bridge"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	"github.com/next-trace/scg-notification-handler/internal/wire"
)

type fakeWriter struct {
	calls []struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}
	err error
}

func (f *fakeWriter) Write(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.calls = append(f.calls, struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}{topic, key, value, headers})

	return f.err
}

// fakeReader hands out one batch per Poll and then reports ErrClosed.
type fakeReader struct {
	batches [][]kafka.Record
	errs    []error
}

func (f *fakeReader) Poll(context.Context) ([]kafka.Record, error) {
	if len(f.batches) == 0 {
		return nil, kafka.ErrClosed
	}

	recs := f.batches[0]
	f.batches = f.batches[1:]

	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}

	return recs, err
}

func rec(topic, value string) kafka.Record { return kafka.Record{Topic: topic, Value: []byte(value)} }

func TestKafka_Run_DispatchesToListeners(t *testing.T) {
	fr := &fakeReader{
		batches: [][]kafka.Record{
			{
				rec("notifications.onHandleNotification", `{"id":"n1","notification":{}}`),
				rec("notifications.onHandleNotificationTimeout", `{"id":"n1","notification":{}}`),
			},
			{
				rec("notifications.somethingElse", `{"id":"x"}`),
				rec("notifications.onHandleNotification", `broken`),
				rec("notifications.onHandleNotification", `{"id":"n2","notification":{}}`),
			},
		},
		errs: []error{nil, errors.New("partition moved")},
	}
	ad := kafka.New(&fakeWriter{}, fr)

	var handled, timedOut []string

	if _, err := ad.AddListener(bridge.EventHandleNotification, func(_ context.Context, ev bridge.HandleEvent) {
		handled = append(handled, ev.ID)
	}); err != nil {
		t.Fatalf("add listener: %v", err)
	}

	sub, _ := ad.AddListener(bridge.EventHandleNotificationTimeout, func(_ context.Context, ev bridge.HandleEvent) {
		timedOut = append(timedOut, ev.ID)
	})

	if err := ad.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handled) != 2 || handled[0] != "n1" || handled[1] != "n2" {
		t.Fatalf("handled=%v", handled)
	}

	if len(timedOut) != 1 {
		t.Fatalf("timedOut=%v", timedOut)
	}

	sub.Remove()

	fr.batches = [][]kafka.Record{{rec("notifications.onHandleNotificationTimeout", `{"id":"n3"}`)}}
	_ = ad.Run(t.Context())

	if len(timedOut) != 1 {
		t.Fatalf("removed listener still invoked: %v", timedOut)
	}
}

func TestKafka_Run_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ad := kafka.New(nil, &fakeReader{batches: [][]kafka.Record{{}, {}, {}}, errs: []error{context.Canceled}})
	if err := ad.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestKafka_NilReaderOrWriter(t *testing.T) {
	ad := kafka.New(nil, nil)

	if _, err := ad.AddListener(bridge.EventHandleNotification, func(context.Context, bridge.HandleEvent) {}); !errors.Is(err, nerr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured, got %v", err)
	}

	if err := ad.Run(t.Context()); !errors.Is(err, nerr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured, got %v", err)
	}

	if err := ad.HandleNotification(t.Context(), "n", bridge.BehaviorDecision{}); !errors.Is(err, nerr.ErrSubmitFailed) {
		t.Fatalf("want ErrSubmitFailed, got %v", err)
	}

	ad = kafka.New(nil, &fakeReader{})
	if _, err := ad.AddListener("bogus", func(context.Context, bridge.HandleEvent) {}); !errors.Is(err, nerr.ErrUnknownEvent) {
		t.Fatalf("want ErrUnknownEvent, got %v", err)
	}
}

func TestKafka_HandleNotification_Write(t *testing.T) {
	fw := &fakeWriter{}
	ad := kafka.New(fw, nil)
	ad.Prefix = "push"

	if err := ad.HandleNotification(t.Context(), "key1", bridge.BehaviorDecision{ShouldShowAlert: true}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(fw.calls) != 1 {
		t.Fatalf("want 1, got %d", len(fw.calls))
	}

	c := fw.calls[0]
	if c.topic != "push.handleNotificationAsync" {
		t.Fatalf("topic: %s", c.topic)
	}

	if string(c.key) != "key1" || c.headers["notification-id"] != "key1" {
		t.Fatalf("key/headers: %s %+v", c.key, c.headers)
	}

	s, err := wire.DecodeSubmission(c.value)
	if err != nil || !s.Behavior.ShouldShowAlert {
		t.Fatalf("value: %+v %v", s, err)
	}
}

func TestKafka_HandleNotification_ErrorWrapping(t *testing.T) {
	boom := errors.New("not enough replicas")
	ad := kafka.New(&fakeWriter{err: boom}, nil)

	err := ad.HandleNotification(t.Context(), "n", bridge.BehaviorDecision{})
	if !errors.Is(err, nerr.ErrSubmitFailed) || !errors.Is(err, boom) {
		t.Fatalf("want wrapped error, got %v", err)
	}

	ad = kafka.New(&fakeWriter{err: context.DeadlineExceeded}, nil)
	if err := ad.HandleNotification(t.Context(), "n", bridge.BehaviorDecision{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}
}

func TestKafka_Topics(t *testing.T) {
	ad := kafka.New(nil, nil)

	topics := ad.Topics()
	if len(topics) != 2 || topics[0] != "notifications.onHandleNotification" || topics[1] != "notifications.onHandleNotificationTimeout" {
		t.Fatalf("topics=%v", topics)
	}
}

func TestNewWithKgo_Validation(t *testing.T) {
	if _, _, err := kafka.NewWithKgo(kafka.Config{}); !errors.Is(err, nerr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured for no brokers, got %v", err)
	}

	if _, _, err := kafka.NewWithKgo(kafka.Config{Brokers: []string{"localhost:9092"}, Acks: "some"}); !errors.Is(err, nerr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured for bad acks, got %v", err)
	}

	if _, _, err := kafka.NewWithKgo(kafka.Config{Brokers: []string{"localhost:9092"}, Compression: "brotli"}); !errors.Is(err, nerr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured for bad compression, got %v", err)
	}
}
