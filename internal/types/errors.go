package types

import "fmt"

const (
	CodeHostCall         = "HOST_CALL"
	CodeInvalidTarget    = "INVALID_TARGET"
	CodeUnsupportedCap   = "UNSUPPORTED_CAPABILITY"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
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

// NewError builds a CodedError. Cause may be nil.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}
