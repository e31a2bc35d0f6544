package pipeline

import "go.uber.org/zap"

// Stage is a position in the per-request lifecycle. It is logged as the
// "stage" field so one request can be followed across components.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageAuthorizing   Stage = "AUTHORIZING"
	StageAuthorized    Stage = "AUTHORIZED"
	StageRejected      Stage = "REJECTED"
	StageExecuting     Stage = "EXECUTING"
	StageSucceeded     Stage = "SUCCEEDED"
	StageFailed        Stage = "FAILED"
	StageQueuedSuccess Stage = "QUEUED_SUCCESS"
	StageQueuedFailure Stage = "QUEUED_FAILURE"
	StageRedelivered   Stage = "REDELIVERED"
	StagePersisted     Stage = "PERSISTED"
)

// Terminal reports whether the pipeline guarantees nothing after this stage.
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StagePersisted
}

// Field returns the zap field for the stage.
func (s Stage) Field() zap.Field {
	return zap.String("stage", string(s))
}

// QueuedStage returns the queued stage matching an outcome.
func QueuedStage(o Outcome) Stage {
	if o.Succeeded() {
		return StageQueuedSuccess
	}
	return StageQueuedFailure
}
