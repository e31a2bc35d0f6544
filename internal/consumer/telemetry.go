package consumer

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	recordsPersisted metric.Int64Counter
	persistFailures  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/imrishuroy/go-dispatch-pipeline/internal/consumer")

	var err error

	recordsPersisted, err = meter.Int64Counter(
		"dispatch.consumer.records_persisted",
		metric.WithDescription("Records written to the store"),
	)
	if err != nil {
		log.Fatalf("failed to create consumer.records_persisted counter: %v", err)
	}

	persistFailures, err = meter.Int64Counter(
		"dispatch.consumer.persist_failures",
		metric.WithDescription("Record writes rejected by the store"),
	)
	if err != nil {
		log.Fatalf("failed to create consumer.persist_failures counter: %v", err)
	}
}
