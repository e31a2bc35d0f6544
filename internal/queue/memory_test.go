package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func successOutcome(id string) pipeline.Outcome {
	return pipeline.NewSuccess("fn", pipeline.Request{RequestID: id, Date: "2024-01-01"},
		json.RawMessage(`{"status":"ok"}`), time.Unix(0, 0))
}

func TestMemoryQueue_EnqueueReceiveAck(t *testing.T) {
	q := NewMemoryQueue("success", 30*time.Second)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, successOutcome("r1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].MessageID)
	assert.Equal(t, 1, items[0].DeliveryCount)

	o, err := items[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "r1", o.RequestContext.RequestID)
	assert.True(t, o.Succeeded())

	// invisible while leased
	again, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Acknowledge(ctx, items[0].AckToken))
	assert.Equal(t, 0, q.Len())
	assert.ErrorIs(t, q.Acknowledge(ctx, items[0].AckToken), ErrUnknownReceipt)
}

func TestMemoryQueue_RedeliversAfterVisibility(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	q := NewMemoryQueue("success", 10*time.Second, WithClock(clock.Now))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, successOutcome("r1"))
	require.NoError(t, err)

	first, err := q.ReceiveBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clock.Advance(11 * time.Second)
	second, err := q.ReceiveBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].MessageID, second[0].MessageID)
	assert.Equal(t, 2, second[0].DeliveryCount)

	// the first receipt is stale once the item is redelivered
	assert.ErrorIs(t, q.Acknowledge(ctx, first[0].AckToken), ErrUnknownReceipt)
	require.NoError(t, q.Acknowledge(ctx, second[0].AckToken))
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_BatchLimit(t *testing.T) {
	q := NewMemoryQueue("success", time.Minute)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := q.EnqueueRaw(ctx, []byte(`{}`))
		require.NoError(t, err)
	}

	items, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	rest, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	_, err = q.ReceiveBatch(ctx, 0)
	assert.ErrorIs(t, err, ErrBatchSize)
	_, err = q.ReceiveBatch(ctx, MaxBatch+1)
	assert.ErrorIs(t, err, ErrBatchSize)
	assert.True(t, IsPermanent(err))
}

func TestMemoryQueue_CanceledContext(t *testing.T) {
	q := NewMemoryQueue("success", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Enqueue(ctx, successOutcome("r1"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_Snapshot(t *testing.T) {
	q := NewMemoryQueue("failure", time.Minute)
	ctx := context.Background()
	req := pipeline.Request{RequestID: "r9", Date: "nope"}
	_, err := q.Enqueue(ctx, pipeline.NewFailure("fn", req, errors.New("bad date"), time.Unix(0, 0)))
	require.NoError(t, err)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	detail, ok := snap[0].Error()
	require.True(t, ok)
	assert.Equal(t, "bad date", detail.ErrorMessage)

	// snapshot does not lease
	items, err := q.ReceiveBatch(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
