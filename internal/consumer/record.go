package consumer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/employees"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/validation"
)

// ErrNotSuccess is returned for a failure outcome found on the success queue.
var ErrNotSuccess = errors.New("outcome is not a success")

// flexString accepts a JSON string or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(b)
	return nil
}

type recordPayload struct {
	EmployeeID          flexString `json:"employee_id"`
	EmployeeName        flexString `json:"employee_name"`
	EmployeeAge         flexString `json:"employee_age"`
	EmployeeDesignation flexString `json:"employee_designation"`
}

// RecordFromOutcome derives the stored record from a success outcome. Key
// fields missing from the payload fall back to the request id and date, so
// every request maps to one stable key and redeliveries overwrite it.
func RecordFromOutcome(o pipeline.Outcome) (employees.Record, error) {
	if !o.Succeeded() {
		return employees.Record{}, ErrNotSuccess
	}

	var p recordPayload
	trimmed := bytes.TrimSpace(o.ResponsePayload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return employees.Record{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	rec := employees.Record{
		EmployeeID:          string(p.EmployeeID),
		EmployeeName:        string(p.EmployeeName),
		EmployeeAge:         string(p.EmployeeAge),
		EmployeeDesignation: string(p.EmployeeDesignation),
		RequestID:           o.RequestContext.RequestID,
		RequestDate:         o.RequestPayload.Date,
		Payload:             string(trimmed),
		RecordedAt:          o.Timestamp,
	}
	if rec.EmployeeID == "" {
		rec.EmployeeID = o.RequestContext.RequestID
	}
	if rec.EmployeeName == "" {
		rec.EmployeeName = o.RequestPayload.Date
	}
	return rec, nil
}

func recordInput(rec employees.Record) validation.RecordInput {
	return validation.RecordInput{
		EmployeeID:          rec.EmployeeID,
		EmployeeName:        rec.EmployeeName,
		EmployeeAge:         rec.EmployeeAge,
		EmployeeDesignation: rec.EmployeeDesignation,
	}
}
