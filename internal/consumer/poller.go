package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/faults"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
)

// BatchSize is the number of items fetched per receive.
const BatchSize = 5

// Poller drains a queue with an explicit receive loop.
type Poller struct {
	Queue     queue.Queue
	QueueName string
	Processor *Processor

	// DeadLetter receives items that failed MaxDeliveries times. When nil,
	// such items stay on the queue and are reported on every delivery.
	DeadLetter    queue.Queue
	MaxDeliveries int
	PollInterval  time.Duration

	Faults faults.Reporter
	Logger *zap.Logger
}

// RunOnce processes a single batch. It returns the number of items received.
// Items whose write failed are left for redelivery unless dead-lettered.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	items, err := p.Queue.ReceiveBatch(ctx, BatchSize)
	if err != nil {
		return 0, fmt.Errorf("receive from %s: %w", p.QueueName, err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	res := p.Processor.ProcessBatch(ctx, items)

	var result *multierror.Error
	for _, it := range res.Succeeded {
		if err := p.Queue.Acknowledge(ctx, it.AckToken); err != nil {
			// the item will come back and be rewritten with the same key
			p.Logger.Warn("acknowledge failed", zap.String("message_id", it.MessageID), zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	for _, f := range res.Failed {
		if p.deadLetter(ctx, f) {
			if err := p.Queue.Acknowledge(ctx, f.Item.AckToken); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}
		result = multierror.Append(result, fmt.Errorf("message %s: %w", f.Item.MessageID, f.Err))
	}
	return len(items), result.ErrorOrNil()
}

// deadLetter reports an item over its delivery budget and forwards it to the
// dead-letter queue when one is set. It returns true when the item may be
// removed from the source queue.
func (p *Poller) deadLetter(ctx context.Context, f FailedItem) bool {
	if p.MaxDeliveries <= 0 || f.Item.DeliveryCount < p.MaxDeliveries {
		return false
	}
	p.Faults.ReportDeadLetter(ctx, p.QueueName, f.Item.MessageID, f.Item.DeliveryCount, f.Err)
	if p.DeadLetter == nil {
		return false
	}
	if _, err := p.DeadLetter.EnqueueRaw(ctx, f.Item.Body); err != nil {
		p.Logger.Error("dead-letter forward failed", zap.String("message_id", f.Item.MessageID), zap.Error(err))
		return false
	}
	return true
}

// Run polls until ctx is cancelled, sleeping PollInterval whenever the queue
// is empty or a receive fails.
func (p *Poller) Run(ctx context.Context) error {
	p.Logger.Info("poller started", zap.String("queue", p.QueueName), zap.Int("batch_size", BatchSize))
	for {
		if ctx.Err() != nil {
			p.Logger.Info("poller stopped", zap.String("queue", p.QueueName))
			return nil
		}

		n, err := p.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.Logger.Warn("batch incomplete", zap.String("queue", p.QueueName), zap.Error(err))
		}
		if n > 0 && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(p.PollInterval):
		}
	}
}
