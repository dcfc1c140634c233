package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpilotpro/captain-cortex/internal/metrics"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{messages: msgs, drained: make(chan struct{})}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	select {
	case <-f.drained:
	default:
		close(f.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

type fakeInvalidator struct {
	mu   sync.Mutex
	orgs []string
}

func (f *fakeInvalidator) InvalidateOrganization(organizationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgs = append(f.orgs, organizationID)
	return 2
}

func TestHandle(t *testing.T) {
	inv := &fakeInvalidator{}
	c := NewConsumer(newFakeReader(), inv, nil)
	before := testutil.ToFloat64(metrics.InvalidationEvents.WithLabelValues("utility_bill", "applied"))

	removed := c.Handle(kafka.Message{Value: []byte(`{"entity":"utility_bill","organizationId":"org1","entityId":"42","action":"update"}`)})

	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"org1"}, inv.orgs)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.InvalidationEvents.WithLabelValues("utility_bill", "applied")))
}

func TestHandle_EntityLabel(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		label  string
	}{
		{"known entity", "booking", "booking"},
		{"missing entity", "", "unknown"},
		{"unrecognised entity", "guest-review-7f3a", "other"},
		{"case sensitive", "Task", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(newFakeReader(), &fakeInvalidator{}, nil)
			before := testutil.ToFloat64(metrics.InvalidationEvents.WithLabelValues(tt.label, "applied"))

			c.Handle(kafka.Message{Value: []byte(`{"entity":"` + tt.entity + `","organizationId":"org1","action":"update"}`)})

			assert.Equal(t, before+1, testutil.ToFloat64(metrics.InvalidationEvents.WithLabelValues(tt.label, "applied")))
			if tt.label != tt.entity && tt.entity != "" {
				assert.False(t, metrics.InvalidationEvents.DeleteLabelValues(tt.entity, "applied"),
					"raw entity must not become a label value")
			}
		})
	}
}

func TestHandle_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `entity=task`},
		{"no organization", `{"entity":"task","action":"create"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvalidator{}
			c := NewConsumer(newFakeReader(), inv, nil)

			assert.Equal(t, 0, c.Handle(kafka.Message{Value: []byte(tt.value)}))
			assert.Empty(t, inv.orgs)
		})
	}
}

func TestRun_ConsumesAndCommits(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{"entity":"booking","organizationId":"org1","action":"create"}`)},
		kafka.Message{Offset: 2, Value: []byte(`garbage`)},
		kafka.Message{Offset: 3, Value: []byte(`{"entity":"task","organizationId":"org2","action":"delete"}`)},
	)
	reader.fetchErrs = []error{errors.New("broker not available")}
	inv := &fakeInvalidator{}
	c := NewConsumer(reader, inv, nil)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []string{"org1", "org2"}, inv.orgs)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

func TestNewReader_Validation(t *testing.T) {
	_, err := NewReader(Config{Topic: "data-changes"})
	assert.Error(t, err)

	_, err = NewReader(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	r, err := NewReader(Config{Brokers: []string{"localhost:9092"}, Topic: "data-changes"})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}
