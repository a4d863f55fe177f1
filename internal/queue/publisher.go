// Package queue publishes opportunities and execution results to Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	DefaultOpportunityTopic = "polyarb.opportunities"
	DefaultExecutionTopic   = "polyarb.executions"
)

// Config names the brokers and topics.
type Config struct {
	Brokers          []string
	OpportunityTopic string
	ExecutionTopic   string
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements domain.OpportunityPublisher.
type Publisher struct {
	opps  messageWriter
	execs messageWriter
	now   func() time.Time
}

// NewPublisher creates a publisher with one writer per topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("queue: at least one broker is required")
	}
	if cfg.OpportunityTopic == "" {
		cfg.OpportunityTopic = DefaultOpportunityTopic
	}
	if cfg.ExecutionTopic == "" {
		cfg.ExecutionTopic = DefaultExecutionTopic
	}
	return newPublisher(newWriter(cfg.Brokers, cfg.OpportunityTopic), newWriter(cfg.Brokers, cfg.ExecutionTopic)), nil
}

func newPublisher(opps, execs messageWriter) *Publisher {
	return &Publisher{opps: opps, execs: execs, now: time.Now}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// PublishOpportunity writes the opportunity record keyed by its signature so
// repeats of one basket land on the same partition.
func (p *Publisher) PublishOpportunity(ctx context.Context, opp *domain.EnhancedOpportunity) error {
	return p.PublishOpportunities(ctx, []*domain.EnhancedOpportunity{opp})
}

// PublishOpportunities writes a batch in one call.
func (p *Publisher) PublishOpportunities(ctx context.Context, opps []*domain.EnhancedOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(opps))
	for _, opp := range opps {
		payload, err := json.Marshal(opp.ToRecord())
		if err != nil {
			return fmt.Errorf("queue: marshal opportunity %s: %w", opp.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(opp.Signature()),
			Value:   payload,
			Time:    at,
			Headers: []kafka.Header{{Key: "class", Value: []byte(opp.Class)}},
		})
	}
	if err := p.opps.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("queue: publish %d opportunities: %w", len(msgs), err)
	}
	return nil
}

// PublishExecution writes the execution result keyed by opportunity id.
func (p *Publisher) PublishExecution(ctx context.Context, res domain.ExecutionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("queue: marshal execution %s: %w", res.ID, err)
	}
	msg := kafka.Message{
		Key:     []byte(res.OpportunityID),
		Value:   payload,
		Time:    p.now().UTC(),
		Headers: []kafka.Header{{Key: "status", Value: []byte(res.Status)}},
	}
	if err := p.execs.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("queue: publish execution %s: %w", res.ID, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	return errors.Join(p.opps.Close(), p.execs.Close())
}

var _ domain.OpportunityPublisher = (*Publisher)(nil)
