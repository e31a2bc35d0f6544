package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/faults"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
)

// Router hands each outcome to exactly one queue chosen by its condition.
type Router struct {
	Success     queue.Queue
	Failure     queue.Queue
	SuccessName string
	FailureName string

	// MaxAttempts bounds enqueue attempts per outcome, including the first.
	MaxAttempts int
	// InitialBackoff is the first retry delay; later delays grow exponentially.
	InitialBackoff time.Duration

	Faults faults.Reporter
	Logger *zap.Logger
}

func (r *Router) target(o pipeline.Outcome) (queue.Queue, string) {
	if o.Succeeded() {
		return r.Success, r.SuccessName
	}
	return r.Failure, r.FailureName
}

// Route enqueues o, retrying transient errors. When every attempt fails the
// outcome is reported as lost and ErrEnqueueFailure is returned.
func (r *Router) Route(ctx context.Context, o pipeline.Outcome) (string, error) {
	q, name := r.target(o)
	logger := r.Logger.With(
		zap.String("request_id", o.RequestContext.RequestID),
		zap.String("queue", name),
	)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialBackoff
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	var messageID string
	attempt := 1
	err := backoff.Retry(func() error {
		id, err := q.Enqueue(ctx, o)
		if err != nil {
			logger.Warn("enqueue failed", zap.Int("attempt", attempt), zap.Error(err))
			attempt++
			if queue.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		messageID = id
		return nil
	}, b)
	if err != nil {
		r.Faults.ReportDataLoss(ctx, name, o, err)
		return "", fmt.Errorf("%w: %s: %w", pipeline.ErrEnqueueFailure, name, err)
	}

	outcomesRouted.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", name)))
	logger.Info("outcome queued", pipeline.QueuedStage(o).Field(), zap.String("message_id", messageID))
	return messageID, nil
}
