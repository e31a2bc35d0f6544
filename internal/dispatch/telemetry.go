package dispatch

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	executions     metric.Int64Counter
	outcomesRouted metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/imrishuroy/go-dispatch-pipeline/internal/dispatch")

	var err error

	executions, err = meter.Int64Counter(
		"dispatch.primary.executions",
		metric.WithDescription("Primary unit executions by condition"),
	)
	if err != nil {
		log.Fatalf("failed to create primary.executions counter: %v", err)
	}

	outcomesRouted, err = meter.Int64Counter(
		"dispatch.outcomes.routed",
		metric.WithDescription("Outcomes accepted by a result queue"),
	)
	if err != nil {
		log.Fatalf("failed to create outcomes.routed counter: %v", err)
	}
}
