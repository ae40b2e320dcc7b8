// Package kafka forwards audit events to a Kafka topic as JSON records keyed
// by subject, so all events for one offer or record land on one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	audit "titulaciones/pkg/platform/audit"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "titulaciones.audit"

type Store struct {
	client *kgo.Client
	topic  string
}

type Option func(*options)

type options struct {
	topic      string
	partitions int32
	replicas   int16
}

func WithTopic(topic string) Option {
	return func(o *options) {
		o.topic = topic
	}
}

func WithPartitions(partitions int32, replicas int16) Option {
	return func(o *options) {
		o.partitions = partitions
		o.replicas = replicas
	}
}

// New connects to brokers and ensures the audit topic exists.
func New(ctx context.Context, brokers []string, opts ...Option) (*Store, error) {
	o := options{topic: DefaultTopic, partitions: 3, replicas: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit store requires at least one broker")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(o.topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), o); err != nil {
		client.Close()
		return nil, err
	}
	return &Store{client: client, topic: o.topic}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, o options) error {
	resp, err := adm.CreateTopics(ctx, o.partitions, o.replicas, nil, o.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *Store) Topic() string { return s.topic }

// Append produces the event and waits for the broker acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
