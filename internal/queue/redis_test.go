package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T, mr *miniredis.Miniredis) *r.Client {
	t.Helper()
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// failAfterReply lets the server run each command, then reports the call as
// cancelled, like a consumer stopped between request and reply.
type failAfterReply struct{}

func (failAfterReply) DialHook(next r.DialHook) r.DialHook { return next }

func (failAfterReply) ProcessHook(next r.ProcessHook) r.ProcessHook {
	return func(ctx context.Context, cmd r.Cmder) error {
		if err := next(ctx, cmd); err != nil {
			return err
		}
		return context.Canceled
	}
}

func (failAfterReply) ProcessPipelineHook(next r.ProcessPipelineHook) r.ProcessPipelineHook {
	return next
}

func TestRedisQueue_EnqueueReceiveAck(t *testing.T) {
	mr := miniredis.RunT(t)
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	q := NewRedisQueue(newRedisClient(t, mr), "success", time.Minute, WithRedisClock(clk.Now))
	ctx := context.Background()

	id, err := q.Enqueue(ctx, successOutcome("r1"))
	require.NoError(t, err)

	items, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].MessageID)
	assert.Equal(t, 1, items[0].DeliveryCount)
	assert.Equal(t, clk.Now().UTC(), items[0].EnqueuedAt)
	o, err := items[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "r1", o.RequestContext.RequestID)

	require.NoError(t, q.Acknowledge(ctx, items[0].AckToken))
	assert.ErrorIs(t, q.Acknowledge(ctx, items[0].AckToken), ErrUnknownReceipt)

	clk.Advance(2 * time.Minute)
	items, err = q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, mr.Exists("dispatch:success:bodies"))
}

func TestRedisQueue_RedeliversExpiredLease(t *testing.T) {
	mr := miniredis.RunT(t)
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	q := NewRedisQueue(newRedisClient(t, mr), "success", 30*time.Second, WithRedisClock(clk.Now))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, successOutcome("r1"))
	require.NoError(t, err)

	first, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clk.Advance(10 * time.Second)
	hidden, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	clk.Advance(30 * time.Second)
	again, err := q.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].MessageID, again[0].MessageID)
	assert.Equal(t, 2, again[0].DeliveryCount)
}

func TestRedisQueue_LostReplyDoesNotLoseItems(t *testing.T) {
	mr := miniredis.RunT(t)
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	healthy := NewRedisQueue(newRedisClient(t, mr), "success", 30*time.Second, WithRedisClock(clk.Now))
	ctx := context.Background()

	want := map[string]bool{}
	for _, id := range []string{"r1", "r2"} {
		msgID, err := healthy.Enqueue(ctx, successOutcome(id))
		require.NoError(t, err)
		want[msgID] = true
	}

	broken := newRedisClient(t, mr)
	broken.AddHook(failAfterReply{})
	stopped := NewRedisQueue(broken, "success", 30*time.Second, WithRedisClock(clk.Now))
	_, err := stopped.ReceiveBatch(ctx, 5)
	require.Error(t, err)

	clk.Advance(time.Minute)
	items, err := healthy.ReceiveBatch(ctx, 5)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, it := range items {
		got[it.MessageID] = true
		require.NoError(t, healthy.Acknowledge(ctx, it.AckToken))
	}
	assert.Equal(t, want, got)
}

func TestRedisQueue_ConcurrentRequeueHasNoDuplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	a := NewRedisQueue(newRedisClient(t, mr), "success", 30*time.Second, WithRedisClock(clk.Now))
	b := NewRedisQueue(newRedisClient(t, mr), "success", 30*time.Second, WithRedisClock(clk.Now))
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		_, err := a.Enqueue(ctx, successOutcome(id))
		require.NoError(t, err)
	}
	leased, err := a.ReceiveBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, leased, 2)

	clk.Advance(time.Minute)
	fromA, err := a.ReceiveBatch(ctx, 1)
	require.NoError(t, err)
	fromB, err := b.ReceiveBatch(ctx, 5)
	require.NoError(t, err)

	require.Len(t, fromA, 1)
	require.Len(t, fromB, 1)
	assert.NotEqual(t, fromA[0].MessageID, fromB[0].MessageID)

	ready, err := mr.List("dispatch:success:ready")
	if err == nil {
		assert.Empty(t, ready)
	}
	for _, it := range append(fromA, fromB...) {
		_, err := it.Decode()
		assert.NoError(t, err)
	}
}
