package model

import "fmt"

type ErrorCode string

const (
	// Validation errors, recoverable through the repair loop.
	CodeSchemaInvalid        ErrorCode = "SCHEMA_INVALID"
	CodeUnknownReference     ErrorCode = "UNKNOWN_REFERENCE"
	CodeNoJoinPath           ErrorCode = "NO_JOIN_PATH"
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeTemplateViolation    ErrorCode = "TEMPLATE_VIOLATION"
	CodeInvalidTimeRange     ErrorCode = "INVALID_TIME_RANGE"

	// Transport-level: the plan generator itself failed. Not retried.
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"

	// Guard checks between plan and database. Never bypassed.
	CodeCompileGuardViolation ErrorCode = "COMPILE_GUARD_VIOLATION"
	CodeUnsafeStatement       ErrorCode = "UNSAFE_STATEMENT"

	// Execution-level, surfaced but not retried automatically.
	CodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	CodeExecutionFailed  ErrorCode = "EXECUTION_FAILED"
)

type Severity string

const (
	SeverityFatal    Severity = "fatal"
	SeverityAdvisory Severity = "advisory"
)

// ValidationError is one typed finding from plan validation. Fatal errors
// block compilation; advisory ones are surfaced but non-blocking.
type ValidationError struct {
	Code        ErrorCode `json:"code"`
	FieldPath   string    `json:"field_path"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// HasFatal reports whether any error in the list blocks compilation.
func HasFatal(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// PipelineError carries the stage and structured code of a non-validation
// failure so the caller never sees a bare error string.
type PipelineError struct {
	Stage string
	Code  ErrorCode
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Code, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func NewPipelineError(stage string, code ErrorCode, err error) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Err: err}
}
