// Package dispatch runs the primary unit and routes its outcome to the result
// queues.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/validation"
)

// Unit is the business logic behind the route. A returned error or a panic
// is a failed execution.
type Unit func(ctx context.Context, req pipeline.Request) (json.RawMessage, error)

// PanicError is the failure recorded when a unit panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// DateReport is the default unit. It validates the date segment and echoes it
// back with its weekday.
func DateReport(v *validatorv10.Validate) Unit {
	return func(ctx context.Context, req pipeline.Request) (json.RawMessage, error) {
		if err := validation.ValidateDate(v, req.Date); err != nil {
			return nil, err
		}
		day, _ := time.Parse(validation.DateLayout, req.Date)
		return json.Marshal(map[string]string{
			"status":  "ok",
			"date":    req.Date,
			"weekday": day.Weekday().String(),
		})
	}
}
