package domain

import "fmt"

// EngineError is the unified error type for the optimization engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so wrapped or
// re-messaged errors still satisfy errors.Is against the sentinels below.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Validation errors (-32000 to -32009) ----

var (
	ErrMissingField     = &EngineError{Code: -32000, Message: "missing required field"}
	ErrInvalidDecision  = &EngineError{Code: -32001, Message: "action must be approve or dismiss"}
	ErrInvalidTrigger   = &EngineError{Code: -32002, Message: "invalid trigger type"}
	ErrNotAwaiting      = &EngineError{Code: -32003, Message: "run is not awaiting approval"}
	ErrApprovalNotReqd  = &EngineError{Code: -32004, Message: "run does not require approval"}
	ErrInvalidSnapshots = &EngineError{Code: -32005, Message: "invalid metrics snapshot"}
)

// ---- Lifecycle / FSM errors (-32010 to -32039) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32010, Message: "invalid run transition"}
	ErrRunNotFound       = &EngineError{Code: -32012, Message: "run not found"}
	ErrRunTerminal       = &EngineError{Code: -32013, Message: "run is in a terminal state"}
	ErrOptimisticLock    = &EngineError{Code: -32015, Message: "optimistic lock conflict: run was modified concurrently"}
	ErrDuplicateRun      = &EngineError{Code: -32019, Message: "run already exists"}
	ErrPipelineFailed    = &EngineError{Code: -32020, Message: "pipeline failed"}
)

// ---- Authorization errors (-32100 to -32129) ----

var (
	ErrUnauthenticated  = &EngineError{Code: -32100, Message: "missing or invalid credentials"}
	ErrPermissionDenied = &EngineError{Code: -32101, Message: "caller does not own this business"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit         = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrBusinessNotFound  = &EngineError{Code: -32133, Message: "business not found"}
	ErrCampaignNotFound  = &EngineError{Code: -32134, Message: "campaign not found"}
	ErrConfigInvalid     = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrDuplicateEvent    = &EngineError{Code: -32137, Message: "duplicate event sequence number"}
	ErrNoSnapshots       = &EngineError{Code: -32138, Message: "no metrics snapshots recorded"}
	ErrTokenNotFound     = &EngineError{Code: -32139, Message: "api token not found"}
	ErrPlatformTransport = &EngineError{Code: -32161, Message: "advertising platform unreachable"}
)
