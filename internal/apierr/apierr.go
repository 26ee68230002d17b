package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes shared between the engine services and the HTTP layer.
const (
	CodeInvalidSignal     = "INVALID_SIGNAL"
	CodeUnknownAttribute  = "UNKNOWN_ATTRIBUTE"
	CodeMissingParameter  = "MISSING_PARAMETER"
	CodeProfileNotFound   = "PROFILE_NOT_FOUND"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
	CodeNoRefinementState = "NO_REFINEMENT_STATE"
	CodeStorageError      = "STORAGE_ERROR"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidSignal(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidSignal, err)
}

func UnknownAttribute(name string) *Error {
	return New(http.StatusBadRequest, CodeUnknownAttribute, fmt.Errorf("unknown profile attribute %q", name))
}

func MissingParameter(name string) *Error {
	return New(http.StatusBadRequest, CodeMissingParameter, fmt.Errorf("missing parameter %q", name))
}

func ProfileNotFound(err error) *Error {
	return New(http.StatusNotFound, CodeProfileNotFound, err)
}

func SnapshotNotFound(err error) *Error {
	return New(http.StatusNotFound, CodeSnapshotNotFound, err)
}

func NoRefinementState(err error) *Error {
	return New(http.StatusConflict, CodeNoRefinementState, err)
}

// Storage wraps a collaborator failure. The underlying error is kept for
// logging but callers only see the generic code.
func Storage(err error) *Error {
	return New(http.StatusInternalServerError, CodeStorageError, err)
}

func Is(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Storage(err)
}
