package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

type memMessage struct {
	id         string
	body       []byte
	enqueuedAt time.Time
	visibleAt  time.Time
	deliveries int
	receipt    string
}

// MemoryQueue is an in-process queue with SQS semantics, used for local runs
// and tests.
type MemoryQueue struct {
	mu         sync.Mutex
	name       string
	visibility time.Duration
	now        func() time.Time
	messages   []*memMessage
	receipts   map[string]*memMessage
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithClock replaces time.Now, letting tests move past visibility windows.
func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) { q.now = now }
}

// NewMemoryQueue returns an empty queue with the given visibility window.
func NewMemoryQueue(name string, visibility time.Duration, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:       name,
		visibility: visibility,
		now:        time.Now,
		receipts:   map[string]*memMessage{},
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Enqueue(ctx context.Context, o pipeline.Outcome) (string, error) {
	body, err := encode(o)
	if err != nil {
		return "", err
	}
	return q.EnqueueRaw(ctx, body)
}

func (q *MemoryQueue) EnqueueRaw(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	m := &memMessage{
		id:         uuid.NewString(),
		body:       append([]byte(nil), body...),
		enqueuedAt: now,
		visibleAt:  now,
	}
	q.messages = append(q.messages, m)
	return m.id, nil
}

func (q *MemoryQueue) ReceiveBatch(ctx context.Context, max int) ([]Item, error) {
	if err := checkBatch(max); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Item
	for _, m := range q.messages {
		if len(out) == max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		if m.receipt != "" {
			delete(q.receipts, m.receipt)
		}
		m.deliveries++
		m.visibleAt = now.Add(q.visibility)
		m.receipt = uuid.NewString()
		q.receipts[m.receipt] = m
		out = append(out, Item{
			MessageID:     m.id,
			AckToken:      m.receipt,
			DeliveryCount: m.deliveries,
			EnqueuedAt:    m.enqueuedAt,
			Body:          append([]byte(nil), m.body...),
		})
	}
	return out, nil
}

func (q *MemoryQueue) Acknowledge(ctx context.Context, ackToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.receipts[ackToken]
	if !ok {
		return ErrUnknownReceipt
	}
	delete(q.receipts, ackToken)
	for i, cur := range q.messages {
		if cur == m {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of unacknowledged messages, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Snapshot decodes every unacknowledged message without changing visibility.
func (q *MemoryQueue) Snapshot() []pipeline.Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]pipeline.Outcome, 0, len(q.messages))
	for _, m := range q.messages {
		o, err := Item{MessageID: m.id, Body: m.body}.Decode()
		if err == nil {
			out = append(out, o)
		}
	}
	return out
}
