package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

var errInvalidPayload = errors.New("unit returned invalid JSON")

// Dispatcher executes the unit for one request and routes its outcome.
// The execution and its routing outlive the caller's context: a caller that
// gives up still gets its outcome queued.
type Dispatcher struct {
	Unit         Unit
	FunctionName string
	Router       *Router
	Logger       *zap.Logger

	// ExecutionTimeout bounds the unit's own context. Zero means no bound.
	ExecutionTimeout time.Duration

	now func() time.Time
	wg  sync.WaitGroup
}

// NewDispatcher wires a unit to a router.
func NewDispatcher(unit Unit, functionName string, router *Router, executionTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Unit:             unit,
		FunctionName:     functionName,
		Router:           router,
		Logger:           logger,
		ExecutionTimeout: executionTimeout,
		now:              time.Now,
	}
}

type result struct {
	payload json.RawMessage
	err     error
}

// Invoke runs the unit and returns its payload. It returns ErrExecution when
// the unit fails and ErrExecutionTimeout when ctx ends first.
func (d *Dispatcher) Invoke(ctx context.Context, req pipeline.Request) (json.RawMessage, error) {
	done := make(chan result, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		execCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc = func() {}
		if d.ExecutionTimeout > 0 {
			execCtx, cancel = context.WithTimeout(execCtx, d.ExecutionTimeout)
		}
		payload, err := d.execute(execCtx, req)
		cancel()

		o := d.outcome(req, payload, err)
		done <- result{payload: payload, err: err}

		// routing errors are reported by the router
		_, _ = d.Router.Route(context.WithoutCancel(ctx), o)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %w", pipeline.ErrExecution, res.err)
		}
		return res.payload, nil
	case <-ctx.Done():
		d.Logger.Warn("invocation timed out",
			zap.String("request_id", req.RequestID),
			pipeline.StageExecuting.Field(),
			zap.Error(ctx.Err()),
		)
		return nil, fmt.Errorf("%w: %w", pipeline.ErrExecutionTimeout, ctx.Err())
	}
}

// execute runs the unit, turning panics and malformed payloads into errors.
func (d *Dispatcher) execute(ctx context.Context, req pipeline.Request) (payload json.RawMessage, err error) {
	defer func() {
		if v := recover(); v != nil {
			payload, err = nil, &PanicError{Value: v}
		}
	}()

	d.Logger.Info("executing", zap.String("request_id", req.RequestID), pipeline.StageExecuting.Field())
	payload, err = d.Unit(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, errInvalidPayload
	}
	return payload, nil
}

func (d *Dispatcher) outcome(req pipeline.Request, payload json.RawMessage, err error) pipeline.Outcome {
	logger := d.Logger.With(zap.String("request_id", req.RequestID))
	if err != nil {
		executions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("condition", pipeline.ConditionRetriesExhausted)))
		logger.Info("execution failed", pipeline.StageFailed.Field(), zap.Error(err))
		return pipeline.NewFailure(d.FunctionName, req, err, d.clock())
	}
	executions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("condition", pipeline.ConditionSuccess)))
	logger.Info("execution succeeded", pipeline.StageSucceeded.Field())
	return pipeline.NewSuccess(d.FunctionName, req, payload, d.clock())
}

func (d *Dispatcher) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}

// Wait blocks until every started execution has been routed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
