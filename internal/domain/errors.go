package domain

import (
	"errors"
	"fmt"
)

// Code is the stable, user-visible error code for a failure. Handlers map
// codes to HTTP statuses; everything else just wraps and propagates.
type Code string

const (
	CodeValidation            Code = "validation_error"
	CodeUnsupportedSource     Code = "unsupported_source"
	CodeExtractionEmpty       Code = "extraction_empty"
	CodeExtractionFailed      Code = "extraction_failed"
	CodeNoActiveDocument      Code = "no_active_document"
	CodeDocumentNotFound      Code = "document_not_found"
	CodeExternalService       Code = "external_service_error"
	CodeGenerationUnavailable Code = "generation_unavailable"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the stable code from an error chain, defaulting to
// external_service_error for anything untagged.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeExternalService
}

func IsCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
