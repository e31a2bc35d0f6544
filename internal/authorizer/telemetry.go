package authorizer

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	backendFaults metric.Int64Counter
	decisions     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/imrishuroy/go-dispatch-pipeline/internal/authorizer")

	var err error

	cacheHits, err = meter.Int64Counter(
		"dispatch.authorizer.cache_hits",
		metric.WithDescription("Authorizations answered from the decision cache"),
	)
	if err != nil {
		log.Fatalf("failed to create authorizer.cache_hits counter: %v", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"dispatch.authorizer.cache_misses",
		metric.WithDescription("Authorizations that went to the validator"),
	)
	if err != nil {
		log.Fatalf("failed to create authorizer.cache_misses counter: %v", err)
	}

	backendFaults, err = meter.Int64Counter(
		"dispatch.authorizer.backend_faults",
		metric.WithDescription("Validator failures that produced no decision"),
	)
	if err != nil {
		log.Fatalf("failed to create authorizer.backend_faults counter: %v", err)
	}

	decisions, err = meter.Int64Counter(
		"dispatch.authorizer.decisions",
		metric.WithDescription("Validator decisions by result"),
	)
	if err != nil {
		log.Fatalf("failed to create authorizer.decisions counter: %v", err)
	}
}
