package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.True(t, isConnectionError(fmt.Errorf("publish: %w", amqp091.ErrClosed)))
	assert.False(t, isConnectionError(errors.New("invalid input")))
}

func TestCircuitBreaker(t *testing.T) {
	c := &Client{exchangeName: "x", queueName: "q"}
	assert.False(t, c.isCircuitOpen())

	for range maxFailures {
		c.recordFailure()
	}
	assert.True(t, c.isCircuitOpen())

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	assert.False(t, c.isCircuitOpen())
	assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&c.state))

	// one failure while half open trips it again
	c.recordFailure()
	assert.True(t, c.isCircuitOpen())

	c.recordSuccess()
	assert.False(t, c.isCircuitOpen())
	assert.Zero(t, atomic.LoadInt64(&c.failureCount))
}

func TestPublishMoveGuards(t *testing.T) {
	c := &Client{exchangeName: "x", queueName: "q"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.PublishMove(ctx, NewMoveMessage("r", 1)), context.Canceled)

	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()
	assert.ErrorIs(t, c.PublishMove(context.Background(), NewMoveMessage("r", 1)), ErrCircuitOpen)
}

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked++; return nil }

func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	body, err := NewMoveMessage("req-1", 42).ToJSON()
	require.NoError(t, err)

	t.Run("ack on success", func(t *testing.T) {
		ack := &fakeAck{}
		var got MoveMessage
		out := handleDelivery(context.Background(), body, ack, func(_ context.Context, m MoveMessage) error {
			got = m
			return nil
		})
		assert.Equal(t, Acked, out)
		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, 42, got.WorkItemID)
	})

	t.Run("bad json is dropped", func(t *testing.T) {
		ack := &fakeAck{}
		out := handleDelivery(context.Background(), []byte(`{"request_id":`), ack, func(context.Context, MoveMessage) error {
			t.Fatal("handler must not run")
			return nil
		})
		assert.Equal(t, Rejected, out)
		assert.Equal(t, 1, ack.nacked)
		assert.False(t, ack.requeue)
	})

	t.Run("missing request id is dropped", func(t *testing.T) {
		ack := &fakeAck{}
		out := handleDelivery(context.Background(), []byte(`{"work_item_id":1}`), ack, func(context.Context, MoveMessage) error { return nil })
		assert.Equal(t, Rejected, out)
	})

	t.Run("handler error requeues", func(t *testing.T) {
		ack := &fakeAck{}
		out := handleDelivery(context.Background(), body, ack, func(context.Context, MoveMessage) error {
			return errors.New("database is locked")
		})
		assert.Equal(t, Requeued, out)
		assert.True(t, ack.requeue)
		assert.Zero(t, ack.acked)
	})
}

func TestMoveMessageWireFormat(t *testing.T) {
	msg := MoveMessage{RequestID: "r-1", WorkItemID: 7, Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_id":"r-1","work_item_id":7,"timestamp":"2024-01-01T12:00:00Z"}`, string(b))
}
