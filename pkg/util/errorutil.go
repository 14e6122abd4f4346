package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes rendered to API callers.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeSyncFailed         = "SYNC_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDependencyNotReady = "DEPENDENCY_UNAVAILABLE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewCapacityExceeded reports a crew already working its simultaneous-job limit.
func NewCapacityExceeded(crewName string, limit int, details map[string]any) error {
	msg := fmt.Sprintf("crew %q has reached its limit of %d simultaneous jobs", crewName, limit)
	return NewDomainError(CodeCapacityExceeded, msg, http.StatusBadRequest, details)
}

func NewInvalidTransition(from, to string, details map[string]any) error {
	msg := fmt.Sprintf("cannot move record from %s to %s", from, to)
	return NewDomainError(CodeInvalidTransition, msg, http.StatusBadRequest, details)
}

// NewSyncFailed reports that the local write committed but the remote status
// update did not go through.
func NewSyncFailed(complaintID int64, err error) error {
	return &DomainError{
		Code:       CodeSyncFailed,
		Message:    "complaint status could not be synchronized",
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"complaint_id":    complaintID,
			"local_committed": true,
		},
		Err: err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
