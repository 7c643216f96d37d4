package domain

import "fmt"

// ErrorKind is a typed error classifier, replacing "does err.Error()
// contain a magic substring" retryability checks with a method on the
// kind itself.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindUnsupported        ErrorKind = "unsupported"
	KindNoAvailable        ErrorKind = "no_available"
	KindCapabilityMismatch ErrorKind = "capability_mismatch"
	KindTimeout            ErrorKind = "timeout"
	KindTransient          ErrorKind = "transient"
	KindFatal              ErrorKind = "fatal"
	KindConcurrency        ErrorKind = "concurrency"
)

// Retryable reports whether the router should retry an error of this
// kind under its default policy. A Router can still widen this set via
// its own configured retryableErrors list (see router.Config).
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransient:
		return true
	default:
		return false
	}
}

// Stable error codes surfaced on TaskResult.Error.Code.
const (
	CodeToolNotFound        = "TOOL_NOT_FOUND"
	CodeNoHandler           = "NO_HANDLER"
	CodeExecutionFailed     = "MCP_EXECUTION_FAILED"
	CodeTimeout             = "TIMEOUT"
	CodeCapabilityMismatch  = "CAPABILITY_MISMATCH"
	CodeNoAvailableAgents   = "NO_AVAILABLE_AGENTS"
	CodeDuplicateID         = "DUPLICATE_ID"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeUnsupportedIntent   = "UNSUPPORTED_INTENT"
	CodeRateLimited         = "RATE_LIMITED"
)

// OrchestratorError is the taxonomied error every component returns
// instead of a bare error string, carrying enough structure for the
// router to decide retry behaviour and for the orchestrator to build a
// TaskResult.Error without re-parsing messages.
type OrchestratorError struct {
	Kind        ErrorKind
	Code        string
	Message     string
	Suggestions []string
	Details     map[string]interface{}
}

func (e *OrchestratorError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the router should retry this error.
func (e *OrchestratorError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind.Retryable()
}

// Recoverable mirrors Retryable for the TaskResultError.Recoverable
// flag: a failure is recoverable if retrying (now or later) could
// plausibly succeed.
func (e *OrchestratorError) Recoverable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTimeout, KindTransient, KindConcurrency, KindNoAvailable:
		return true
	default:
		return false
	}
}

// NewError builds an OrchestratorError with no suggestions/details.
func NewError(kind ErrorKind, code, message string) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Code: code, Message: message}
}

// WithSuggestions attaches a capped list of alternative candidates, used
// by selection failures.
func (e *OrchestratorError) WithSuggestions(suggestions []string) *OrchestratorError {
	e.Suggestions = suggestions
	return e
}

// WithDetails attaches structured detail fields (e.g.
// details.supportedActions for UNSUPPORTED_INTENT).
func (e *OrchestratorError) WithDetails(details map[string]interface{}) *OrchestratorError {
	e.Details = details
	return e
}

// AsOrchestratorError unwraps err into an *OrchestratorError, wrapping
// plain errors as KindFatal/CodeExecutionFailed so every caller can
// treat the return value uniformly.
func AsOrchestratorError(err error) *OrchestratorError {
	if err == nil {
		return nil
	}
	if oe, ok := err.(*OrchestratorError); ok {
		return oe
	}
	return &OrchestratorError{Kind: KindFatal, Code: CodeExecutionFailed, Message: err.Error()}
}
