package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrProducerClosed = errors.New("kafka producer is closed")

// Message is a single event destined for a topic
type Message struct {
	Topic   string
	Key     string
	Value   interface{}
	Headers map[string]string
}

// Producer publishes domain events
type Producer interface {
	Publish(ctx context.Context, msg *Message) error
	Close()
}

// ProducerConfig holds franz-go producer settings
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	DefaultTopic string
	// ProduceTimeout bounds a single synchronous produce (default: 10 seconds)
	ProduceTimeout time.Duration
}

// KafkaProducer produces JSON-encoded records synchronously
type KafkaProducer struct {
	client *kgo.Client
	config *ProducerConfig
	closed atomic.Bool
}

// NewProducer creates a franz-go client for producing
func NewProducer(cfg *ProducerConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 10 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.DefaultTopic != "" {
		opts = append(opts, kgo.DefaultProduceTopic(cfg.DefaultTopic))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaProducer{client: client, config: cfg}, nil
}

// Ping checks that at least one broker is reachable
func (p *KafkaProducer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Publish encodes msg.Value as JSON and waits for the broker ack
func (p *KafkaProducer) Publish(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	record, err := newRecord(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.ProduceTimeout)
	defer cancel()

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", record.Topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client
func (p *KafkaProducer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

func newRecord(msg *Message) (*kgo.Record, error) {
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode kafka message: %w", err)
	}

	record := &kgo.Record{
		Topic: msg.Topic,
		Value: value,
	}
	if msg.Key != "" {
		record.Key = []byte(msg.Key)
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return record, nil
}

// NoopProducer discards every message, used when Kafka is disabled
type NoopProducer struct{}

// NewNoopProducer creates a producer that does nothing
func NewNoopProducer() *NoopProducer {
	return &NoopProducer{}
}

func (p *NoopProducer) Publish(ctx context.Context, msg *Message) error { return nil }

func (p *NoopProducer) Close() {}
