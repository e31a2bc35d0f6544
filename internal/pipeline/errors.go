package pipeline

import "errors"

// Error taxonomy shared by every stage. Packages wrap these with %w so callers
// can branch with errors.Is regardless of which component raised them.
var (
	// ErrAuthFault means the credential was invalid; the request is rejected.
	ErrAuthFault = errors.New("auth fault")
	// ErrAuthBackend means the validation backend could not decide.
	ErrAuthBackend = errors.New("auth backend error")
	// ErrQuotaExceeded means the API key is over its usage plan limits.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrExecution means the primary unit returned an error or panicked.
	ErrExecution = errors.New("execution error")
	// ErrExecutionTimeout means the primary unit did not answer in time.
	ErrExecutionTimeout = errors.New("execution timeout")
	// ErrEnqueueFailure means an outcome could not be delivered to its queue.
	ErrEnqueueFailure = errors.New("enqueue failure")
	// ErrPersistFailure means a record write to the store failed.
	ErrPersistFailure = errors.New("persist failure")
)
