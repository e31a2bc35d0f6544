package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"
)

// Condition values mirror the destination record conditions.
const (
	ConditionSuccess          = "Success"
	ConditionRetriesExhausted = "RetriesExhausted"

	// FunctionErrorUnhandled marks a failed execution in the response context.
	FunctionErrorUnhandled = "Unhandled"

	outcomeVersion = "1.0"
)

// Request is what the gateway hands to the primary unit for one call.
type Request struct {
	RequestID   string `json:"requestId"`
	Date        string `json:"date"`
	PrincipalID string `json:"principalId,omitempty"`
}

// RequestContext describes the execution that produced an Outcome.
type RequestContext struct {
	RequestID              string `json:"requestId"`
	FunctionName           string `json:"functionArn"`
	Condition              string `json:"condition"`
	ApproximateInvokeCount int    `json:"approximateInvokeCount"`
}

// ResponseContext carries the status of the execution.
type ResponseContext struct {
	StatusCode    int    `json:"statusCode"`
	FunctionError string `json:"functionError,omitempty"`
}

// ErrorDetail is the response payload of a failed execution.
type ErrorDetail struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

// Outcome is the tagged result of one primary unit execution, shaped like an
// asynchronous invocation destination record.
type Outcome struct {
	Version         string          `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
	RequestContext  RequestContext  `json:"requestContext"`
	RequestPayload  Request         `json:"requestPayload"`
	ResponseContext ResponseContext `json:"responseContext"`
	ResponsePayload json.RawMessage `json:"responsePayload,omitempty"`
}

// NewSuccess wraps a normal return value.
func NewSuccess(functionName string, req Request, payload json.RawMessage, at time.Time) Outcome {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Outcome{
		Version:   outcomeVersion,
		Timestamp: at.UTC(),
		RequestContext: RequestContext{
			RequestID:              req.RequestID,
			FunctionName:           functionName,
			Condition:              ConditionSuccess,
			ApproximateInvokeCount: 1,
		},
		RequestPayload:  req,
		ResponseContext: ResponseContext{StatusCode: 200},
		ResponsePayload: payload,
	}
}

// NewFailure wraps an execution error.
func NewFailure(functionName string, req Request, cause error, at time.Time) Outcome {
	detail := ErrorDetail{ErrorType: ErrorType(cause), ErrorMessage: cause.Error()}
	body, _ := json.Marshal(detail)
	return Outcome{
		Version:   outcomeVersion,
		Timestamp: at.UTC(),
		RequestContext: RequestContext{
			RequestID:              req.RequestID,
			FunctionName:           functionName,
			Condition:              ConditionRetriesExhausted,
			ApproximateInvokeCount: 1,
		},
		RequestPayload: req,
		ResponseContext: ResponseContext{
			StatusCode:    200,
			FunctionError: FunctionErrorUnhandled,
		},
		ResponsePayload: body,
	}
}

// Succeeded reports whether the outcome belongs on the success queue.
func (o Outcome) Succeeded() bool {
	return o.RequestContext.Condition == ConditionSuccess && o.ResponseContext.FunctionError == ""
}

// Error decodes the failure detail. ok is false for successful outcomes.
func (o Outcome) Error() (ErrorDetail, bool) {
	if o.Succeeded() {
		return ErrorDetail{}, false
	}
	var d ErrorDetail
	if err := json.Unmarshal(o.ResponsePayload, &d); err != nil {
		return ErrorDetail{ErrorType: "Unknown", ErrorMessage: string(o.ResponsePayload)}, true
	}
	return d, true
}

// ErrorType names an error the way the runtime reports it: an explicit
// ErrorType method wins, otherwise the dynamic type name of the outermost error
// that is not a plain fmt wrapper.
func ErrorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	for {
		t := reflect.TypeOf(err)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.PkgPath() == "fmt" {
			if next := unwrapFirst(err); next != nil {
				err = next
				continue
			}
		}
		if t.Name() == "" {
			return "Error"
		}
		return t.Name()
	}
}

func unwrapFirst(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		if errs := e.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}
