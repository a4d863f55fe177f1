package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishOpportunities(t *testing.T) {
	opps, execs := &fakeWriter{}, &fakeWriter{}
	p := newPublisher(opps, execs)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	a := &domain.EnhancedOpportunity{ID: "a", Class: domain.ClassSingleCondition, Legs: []domain.Leg{{TokenID: "t1", Side: domain.SideYes}}}
	b := &domain.EnhancedOpportunity{ID: "b", Class: domain.ClassCombinatorial, Legs: []domain.Leg{{TokenID: "t2", Side: domain.SideNo}}}
	require.NoError(t, p.PublishOpportunities(context.Background(), []*domain.EnhancedOpportunity{a, b}))

	require.Len(t, opps.msgs, 2)
	assert.Empty(t, execs.msgs)
	assert.Equal(t, a.Signature(), string(opps.msgs[0].Key))
	assert.Equal(t, "combinatorial", string(opps.msgs[1].Headers[0].Value))

	var rec domain.OpportunityRecord
	require.NoError(t, json.Unmarshal(opps.msgs[1].Value, &rec))
	assert.Equal(t, "b", rec.ID)
}

func TestPublisher_PublishOpportunities_Empty(t *testing.T) {
	opps := &fakeWriter{err: errors.New("must not be called")}
	p := newPublisher(opps, &fakeWriter{})
	assert.NoError(t, p.PublishOpportunities(context.Background(), nil))
}

func TestPublisher_PublishExecution(t *testing.T) {
	opps, execs := &fakeWriter{}, &fakeWriter{}
	p := newPublisher(opps, execs)

	res := domain.ExecutionResult{ID: "e1", OpportunityID: "o1", Status: domain.ExecCompleted}
	require.NoError(t, p.PublishExecution(context.Background(), res))

	require.Len(t, execs.msgs, 1)
	assert.Equal(t, "o1", string(execs.msgs[0].Key))
	assert.Equal(t, "completed", string(execs.msgs[0].Headers[0].Value))
}

func TestPublisher_WriteError(t *testing.T) {
	p := newPublisher(&fakeWriter{err: errors.New("broker down")}, &fakeWriter{})
	err := p.PublishOpportunity(context.Background(), &domain.EnhancedOpportunity{ID: "x"})
	assert.ErrorContains(t, err, "queue: publish 1 opportunities: broker down")
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)

	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	w := p.opps.(*kafka.Writer)
	assert.Equal(t, DefaultOpportunityTopic, w.Topic)
	assert.Equal(t, DefaultExecutionTopic, p.execs.(*kafka.Writer).Topic)
	assert.NoError(t, p.Close())
}
