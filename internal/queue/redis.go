package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// receiveScript requeues expired leases, then pops and leases up to ARGV[3]
// ids in one step, so an id is always either ready or inflight.
//
// KEYS: ready, inflight, deliveries, bodies, enqueued
// ARGV: now_ms, deadline_ms, max
// Returns a flat list of id, delivery count, body, enqueued_ms per item.
var receiveScript = r.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
	if redis.call('ZREM', KEYS[2], id) == 1 then
		redis.call('RPUSH', KEYS[1], id)
	end
end

local out = {}
local n = 0
while n < tonumber(ARGV[3]) do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		break
	end
	local body = redis.call('HGET', KEYS[4], id)
	if body then
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		local count = redis.call('HINCRBY', KEYS[3], id, 1)
		local at = redis.call('HGET', KEYS[5], id) or ''
		table.insert(out, id)
		table.insert(out, count)
		table.insert(out, body)
		table.insert(out, at)
		n = n + 1
	else
		redis.call('HDEL', KEYS[3], id)
		redis.call('HDEL', KEYS[5], id)
	end
end
return out
`)

// ackScript drops a lease and its data only while the lease is held.
//
// KEYS: inflight, bodies, deliveries, enqueued
// ARGV: id
var ackScript = r.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

// RedisQueue keeps ready ids in a list and leased ids in a sorted set scored
// by lease expiry. Bodies, delivery counts and enqueue times live in hashes.
// Receive and acknowledge run as scripts. The ack token is the message id.
type RedisQueue struct {
	rdb        *r.Client
	name       string
	visibility time.Duration
	now        func() time.Time
}

// RedisOption configures a RedisQueue.
type RedisOption func(*RedisQueue)

// WithRedisClock replaces time.Now for lease deadlines.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) { q.now = now }
}

// NewRedisQueue binds a queue name on a redis client.
func NewRedisQueue(rdb *r.Client, name string, visibility time.Duration, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{rdb: rdb, name: name, visibility: visibility, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *RedisQueue) key(part string) string {
	return "dispatch:" + q.name + ":" + part
}

func (q *RedisQueue) Enqueue(ctx context.Context, o pipeline.Outcome) (string, error) {
	body, err := encode(o)
	if err != nil {
		return "", err
	}
	return q.EnqueueRaw(ctx, body)
}

func (q *RedisQueue) EnqueueRaw(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.key("bodies"), id, body)
	pipe.HSet(ctx, q.key("enqueued"), id, q.now().UnixMilli())
	pipe.LPush(ctx, q.key("ready"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis enqueue: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) ReceiveBatch(ctx context.Context, max int) ([]Item, error) {
	if err := checkBatch(max); err != nil {
		return nil, err
	}
	now := q.now()
	keys := []string{q.key("ready"), q.key("inflight"), q.key("deliveries"), q.key("bodies"), q.key("enqueued")}
	vals, err := receiveScript.Run(ctx, q.rdb, keys,
		now.UnixMilli(), now.Add(q.visibility).UnixMilli(), max).Slice()
	if err != nil {
		// leases taken by a script whose reply was lost expire and are redelivered
		return nil, fmt.Errorf("redis receive: %w", err)
	}
	if len(vals)%4 != 0 {
		return nil, fmt.Errorf("redis receive: unexpected reply length %d", len(vals))
	}

	items := make([]Item, 0, len(vals)/4)
	for i := 0; i < len(vals); i += 4 {
		id, _ := vals[i].(string)
		count, _ := vals[i+1].(int64)
		body, _ := vals[i+2].(string)
		it := Item{
			MessageID:     id,
			AckToken:      id,
			DeliveryCount: int(count),
			Body:          []byte(body),
		}
		if s, ok := vals[i+3].(string); ok {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				it.EnqueuedAt = time.UnixMilli(ms).UTC()
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func (q *RedisQueue) Acknowledge(ctx context.Context, ackToken string) error {
	keys := []string{q.key("inflight"), q.key("bodies"), q.key("deliveries"), q.key("enqueued")}
	removed, err := ackScript.Run(ctx, q.rdb, keys, ackToken).Int()
	if err != nil && !errors.Is(err, r.Nil) {
		return fmt.Errorf("redis ack: %w", err)
	}
	if removed == 0 {
		return ErrUnknownReceipt
	}
	return nil
}
