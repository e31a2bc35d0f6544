// Package consumer drains the success queue into the employees store. An
// item is acknowledged only after its record is written.
package consumer

import (
	"context"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/employees"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/validation"
)

// RecordWriter is the store operation the processor needs.
type RecordWriter interface {
	Put(ctx context.Context, rec employees.Record) error
}

// FailedItem is an item whose record could not be written.
type FailedItem struct {
	Item queue.Item
	Err  error
}

// Result splits a batch by write outcome.
type Result struct {
	Succeeded []queue.Item
	Failed    []FailedItem
}

// Processor writes one record per item.
type Processor struct {
	store       RecordWriter
	validate    *validatorv10.Validate
	concurrency int
	logger      *zap.Logger
}

// NewProcessor returns a processor writing up to concurrency records at once.
func NewProcessor(store RecordWriter, v *validatorv10.Validate, concurrency int, logger *zap.Logger) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Processor{store: store, validate: v, concurrency: concurrency, logger: logger}
}

// ProcessBatch writes every item of the batch. Writes are independent, so
// one failure does not stop the others.
func (p *Processor) ProcessBatch(ctx context.Context, items []queue.Item) Result {
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range items {
		g.Go(func() error {
			errs[i] = p.processItem(gctx, items[i])
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, it := range items {
		if errs[i] != nil {
			res.Failed = append(res.Failed, FailedItem{Item: it, Err: errs[i]})
			continue
		}
		res.Succeeded = append(res.Succeeded, it)
	}
	return res
}

func (p *Processor) processItem(ctx context.Context, it queue.Item) error {
	logger := p.logger.With(
		zap.String("message_id", it.MessageID),
		zap.Int("delivery_count", it.DeliveryCount),
	)

	o, err := it.Decode()
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistFailure, err)
	}
	logger = logger.With(zap.String("request_id", o.RequestContext.RequestID))
	if it.DeliveryCount > 1 {
		logger.Info("redelivered", pipeline.StageRedelivered.Field())
	}

	rec, err := RecordFromOutcome(o)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistFailure, err)
	}
	if err := validation.ValidateRecord(p.validate, recordInput(rec)); err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistFailure, err)
	}

	if err := p.store.Put(ctx, rec); err != nil {
		persistFailures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("throttled", employees.IsThrottled(err))))
		logger.Warn("record write failed", zap.String("employee_id", rec.EmployeeID), zap.Error(err))
		return err
	}
	recordsPersisted.Add(ctx, 1)
	logger.Info("record persisted", pipeline.StagePersisted.Field(), zap.String("employee_id", rec.EmployeeID))
	return nil
}
