package capture

import "fmt"

const (
	CodeValidation         = "VALIDATION"
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
	CodeNavigationFailed   = "NAVIGATION_FAILED"
	CodeSuppressionFault   = "SUPPRESSION_FAULT"
	CodeCaptureFault       = "CAPTURE_FAULT"
	CodeEvalTimeout        = "EVAL_TIMEOUT"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError. Exported so the controller facade and the
// session manager share one taxonomy.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}
