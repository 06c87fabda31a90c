// Package publisher emits run results as Kafka events.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
)

// Event types
const (
	EventRunCompleted   = "run.completed"
	EventMatchCreated   = "match.created"
	EventClusterCreated = "cluster.created"
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// KafkaPublisher implements domain.ResultSink
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// Event is the envelope of every message
type Event struct {
	EventType string          `json:"event_type"`
	RunID     string          `json:"run_id"`
	Mode      domain.Mode     `json:"mode"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type runSummary struct {
	Partitions int       `json:"partitions"`
	Matches    int       `json:"matches"`
	Clusters   int       `json:"clusters"`
	Unmatched  int       `json:"unmatched"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, topic: cfg.Topic}
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Publish writes one event per match or cluster followed by a run summary
func (p *KafkaPublisher) Publish(ctx context.Context, result *domain.RunResult) error {
	if result == nil {
		return nil
	}

	msgs, err := p.buildMessages(result)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublishFailure, err)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("topic", p.topic).Msg("Failed to publish run results")
		return fmt.Errorf("%w: %v", domain.ErrPublishFailure, err)
	}

	logging.FromContext(ctx).Debug().
		Str("topic", p.topic).
		Int("messages", len(msgs)).
		Msg("Published run results")
	return nil
}

func (p *KafkaPublisher) buildMessages(result *domain.RunResult) ([]kafka.Message, error) {
	ts := result.FinishedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	msgs := make([]kafka.Message, 0, len(result.Matches)+len(result.Clusters)+1)
	for _, m := range result.Matches {
		msg, err := p.message(EventMatchCreated, m.SourceID, result, ts, m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, c := range result.Clusters {
		msg, err := p.message(EventClusterCreated, c.ID, result, ts, c)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	summary := runSummary{
		Partitions: result.Partitions,
		Matches:    len(result.Matches),
		Clusters:   len(result.Clusters),
		Unmatched:  len(result.Unmatched),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	msg, err := p.message(EventRunCompleted, result.RunID, result, ts, summary)
	if err != nil {
		return nil, err
	}
	return append(msgs, msg), nil
}

func (p *KafkaPublisher) message(eventType, key string, result *domain.RunResult, ts time.Time, payload any) (kafka.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(Event{
		EventType: eventType,
		RunID:     result.RunID,
		Mode:      result.Mode,
		Data:      data,
		Timestamp: ts,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "run_id", Value: []byte(result.RunID)},
		},
	}, nil
}
