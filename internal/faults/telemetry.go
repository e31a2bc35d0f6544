package faults

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	dataLossCounter   metric.Int64Counter
	deadLetterCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/imrishuroy/go-dispatch-pipeline/internal/faults")

	var err error

	dataLossCounter, err = meter.Int64Counter(
		"dispatch.faults.data_loss",
		metric.WithDescription("Outcomes dropped after enqueue retries were exhausted"),
	)
	if err != nil {
		log.Fatalf("failed to create faults.data_loss counter: %v", err)
	}

	deadLetterCounter, err = meter.Int64Counter(
		"dispatch.faults.dead_letter",
		metric.WithDescription("Queue items moved aside after too many deliveries"),
	)
	if err != nil {
		log.Fatalf("failed to create faults.dead_letter counter: %v", err)
	}
}
