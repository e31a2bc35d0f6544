// Package queue provides the at-least-once channels between the primary unit
// and its consumers. Items that are received but not acknowledged within the
// visibility window are delivered again; there is no ordering guarantee.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// MaxBatch is the largest batch any backend hands out in one receive.
const MaxBatch = 10

var (
	// ErrUnknownReceipt is returned when acknowledging a token that does not
	// match a current delivery.
	ErrUnknownReceipt = errors.New("unknown or expired receipt")
	// ErrBatchSize is returned for receive sizes outside 1..MaxBatch.
	ErrBatchSize = errors.New("batch size out of range")
)

// Item is one delivery of a queued outcome.
type Item struct {
	MessageID     string
	AckToken      string
	DeliveryCount int
	EnqueuedAt    time.Time
	Body          []byte
}

// Decode returns the outcome carried by the item.
func (i Item) Decode() (pipeline.Outcome, error) {
	var o pipeline.Outcome
	if err := json.Unmarshal(i.Body, &o); err != nil {
		return o, fmt.Errorf("decode message %s: %w", i.MessageID, err)
	}
	return o, nil
}

// Queue is the contract shared by every backend.
type Queue interface {
	// Enqueue stores the outcome and returns its message id.
	Enqueue(ctx context.Context, o pipeline.Outcome) (string, error)
	// EnqueueRaw stores an already encoded body, used to forward items.
	EnqueueRaw(ctx context.Context, body []byte) (string, error)
	// ReceiveBatch returns up to max visible items without blocking past the
	// backend's wait time. Returned items stay invisible for the visibility window.
	ReceiveBatch(ctx context.Context, max int) ([]Item, error)
	// Acknowledge removes a delivered item.
	Acknowledge(ctx context.Context, ackToken string) error
}

func encode(o pipeline.Outcome) ([]byte, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	return body, nil
}

func checkBatch(max int) error {
	if max < 1 || max > MaxBatch {
		return fmt.Errorf("%w: %d", ErrBatchSize, max)
	}
	return nil
}
