package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeSymbolNotFound       ErrorCode = "SYMBOL_NOT_FOUND"
	CodeUnresolvedImport     ErrorCode = "UNRESOLVED_IMPORT"
	CodeOverlappingEdits     ErrorCode = "OVERLAPPING_EDITS"
	CodeVerificationFailed   ErrorCode = "VERIFICATION_FAILED"
	CodeApplyFailed          ErrorCode = "APPLY_FAILED"
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Exit statuses reported by the CLI.
const (
	ExitOK                 = 0
	ExitInvalidArguments   = 2
	ExitSymbolNotFound     = 3
	ExitApplyFailed        = 4
	ExitVerificationFailed = 5
	ExitInternal           = 10
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxSymbol    = "symbol"
	CtxPosition  = "position"
	CtxModule    = "module"
	CtxLevel     = "level"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches key/value context, wrapping foreign errors as internal.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch CodeOf(err) {
	case CodeValidationError, CodeConfirmationRequired:
		return ExitInvalidArguments
	case CodeSymbolNotFound:
		return ExitSymbolNotFound
	case CodeApplyFailed:
		return ExitApplyFailed
	case CodeVerificationFailed:
		return ExitVerificationFailed
	default:
		return ExitInternal
	}
}
