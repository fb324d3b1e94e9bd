package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/google/uuid"
	nerr "github.com/next-trace/scg-notification-handler/contract/errors"
	"github.com/next-trace/scg-notification-handler/internal/wire"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructor and writer/reader wrapper.

type Config struct {
	Brokers     []string
	TLS         *tls.Config
	ClientID    string
	Group       string // empty consumes without a group, from the end of each partition
	Prefix      string
	Acks        string // all (default), leader, none
	Compression string // snappy, lz4, zstd, gzip, none
}

type kgoClient struct{ cl *kgo.Client }

func (c kgoClient) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return c.cl.ProduceSync(ctx, rec).FirstErr()
}

func (c kgoClient) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}

	var errs []error

	fetches.EachError(func(topic string, partition int32, err error) {
		errs = append(errs, fmt.Errorf("fetch %s/%d: %w", topic, partition, err))
	})

	var recs []Record

	fetches.EachRecord(func(r *kgo.Record) {
		recs = append(recs, Record{Topic: r.Topic, Key: r.Key, Value: r.Value})
	})

	return recs, errors.Join(errs...)
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
// Call Run on the adapter to start delivering events.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", nerr.ErrBridgeNotConfigured)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = wire.DefaultPrefix
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "notification-handler-" + uuid.NewString()
	}

	ad := New(nil, nil)
	ad.Prefix = prefix

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumeTopics(ad.Topics()...),
	}

	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	switch cfg.Acks {
	case "", "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case "leader":
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		return nil, nil, fmt.Errorf("%w: unknown kafka acks %q", nerr.ErrBridgeNotConfigured, cfg.Acks)
	}

	if cfg.Compression != "" {
		codec, err := compressionCodec(cfg.Compression)
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, kgo.ProducerBatchCompression(codec))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", nerr.ErrBridgeNotConfigured, err)
	}

	kc := kgoClient{cl: cl}
	ad.Writer = kc
	ad.Reader = kc

	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}

func compressionCodec(name string) (kgo.CompressionCodec, error) {
	switch name {
	case "none":
		return kgo.NoCompression(), nil
	case "gzip":
		return kgo.GzipCompression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	default:
		return kgo.CompressionCodec{}, fmt.Errorf("%w: unknown kafka compression %q", nerr.ErrBridgeNotConfigured, name)
	}
}
