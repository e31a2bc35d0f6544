// Package faults reports pipeline events that lose or park work: outcomes
// that could not be enqueued and queue items that exceeded their delivery
// budget.
package faults

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// Reporter receives fault events. Implementations must not block for long and
// must never fail the caller.
type Reporter interface {
	ReportDataLoss(ctx context.Context, queueName string, o pipeline.Outcome, cause error)
	ReportDeadLetter(ctx context.Context, queueName string, messageID string, deliveries int, cause error)
}

// LogReporter logs faults at error level and counts them.
type LogReporter struct {
	Logger *zap.Logger
}

// NewLogReporter returns a reporter writing to logger.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{Logger: logger}
}

func (r *LogReporter) ReportDataLoss(ctx context.Context, queueName string, o pipeline.Outcome, cause error) {
	dataLossCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queueName),
		attribute.String("condition", o.RequestContext.Condition),
	))
	r.Logger.Error("outcome lost",
		zap.String("fault", "DATA_LOSS"),
		zap.String("queue", queueName),
		zap.String("request_id", o.RequestContext.RequestID),
		zap.String("condition", o.RequestContext.Condition),
		pipeline.QueuedStage(o).Field(),
		zap.Error(cause),
	)
}

func (r *LogReporter) ReportDeadLetter(ctx context.Context, queueName string, messageID string, deliveries int, cause error) {
	deadLetterCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queueName)))
	r.Logger.Error("message dead-lettered",
		zap.String("fault", "DEAD_LETTER"),
		zap.String("queue", queueName),
		zap.String("message_id", messageID),
		zap.Int("deliveries", deliveries),
		zap.Error(cause),
	)
}

// Event is one recorded fault, kept by Recorder.
type Event struct {
	Kind      string
	Queue     string
	RequestID string
	MessageID string
	Cause     error
}

// Recorder keeps faults in memory. It is used by tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) ReportDataLoss(ctx context.Context, queueName string, o pipeline.Outcome, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: "DATA_LOSS", Queue: queueName, RequestID: o.RequestContext.RequestID, Cause: cause})
}

func (r *Recorder) ReportDeadLetter(ctx context.Context, queueName string, messageID string, deliveries int, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: "DEAD_LETTER", Queue: queueName, MessageID: messageID, Cause: cause})
}

// Events returns a copy of the recorded faults.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Multi fans a fault out to several reporters.
type Multi []Reporter

func (m Multi) ReportDataLoss(ctx context.Context, queueName string, o pipeline.Outcome, cause error) {
	for _, r := range m {
		r.ReportDataLoss(ctx, queueName, o, cause)
	}
}

func (m Multi) ReportDeadLetter(ctx context.Context, queueName string, messageID string, deliveries int, cause error) {
	for _, r := range m {
		r.ReportDeadLetter(ctx, queueName, messageID, deliveries, cause)
	}
}
