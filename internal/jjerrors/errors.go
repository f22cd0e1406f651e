// Package jjerrors defines the stable error taxonomy shared by every
// component of the repository core.
//
// Every error the core returns can be checked with errors.Is against the
// sentinels below, or unwrapped to a *Error to read its stable Code,
// Suggestion and Details:
//
//	if errors.Is(err, jjerrors.ErrChangeNotFound) {
//	    // handle missing change
//	}
package jjerrors

import (
	"errors"
	"fmt"
)

// Code is one of the stable error-code strings from the external interface
// contract. Hosts may match on Code instead of using errors.Is when they
// need to cross a serialization boundary (e.g. an RPC response).
type Code string

const (
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeInvalidConfig          Code = "INVALID_CONFIG"
	CodeInvalidChangeID        Code = "INVALID_CHANGE_ID"
	CodeInvalidPath            Code = "INVALID_PATH"
	CodeInvalidTagName         Code = "INVALID_TAG_NAME"
	CodeChangeNotFound         Code = "CHANGE_NOT_FOUND"
	CodeChangeExists           Code = "CHANGE_EXISTS"
	CodeBookmarkNotFound       Code = "BOOKMARK_NOT_FOUND"
	CodeBookmarkExists         Code = "BOOKMARK_EXISTS"
	CodeTagNotFound            Code = "TAG_NOT_FOUND"
	CodeTagExists              Code = "TAG_EXISTS"
	CodeFileNotFound           Code = "FILE_NOT_FOUND"
	CodeFileMoveFailed         Code = "FILE_MOVE_FAILED"
	CodeAmbiguousOperation     Code = "AMBIGUOUS_OPERATION"
	CodeMergeError             Code = "MERGE_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeNetworkNotAvailable    Code = "NETWORK_NOT_AVAILABLE"
	CodeNetworkError           Code = "NETWORK_ERROR"
	CodeAuthFailed             Code = "AUTH_FAILED"
	CodePushRejected           Code = "PUSH_REJECTED"
	CodePushFailed             Code = "PUSH_FAILED"
	CodeFetchFailed            Code = "FETCH_FAILED"
	CodeStorageReadFailed      Code = "STORAGE_READ_FAILED"
	CodeStorageWriteFailed     Code = "STORAGE_WRITE_FAILED"
	CodeStorageCorrupt         Code = "STORAGE_CORRUPT"
	CodeStorageVersionMismatch Code = "STORAGE_VERSION_MISMATCH"
	CodeUnsupportedOperation   Code = "UNSUPPORTED_OPERATION"
	CodeBackendNotAvailable    Code = "BACKEND_NOT_AVAILABLE"
	CodeBisectAlreadyActive    Code = "BISECT_ALREADY_ACTIVE"
	CodeBisectNotActive        Code = "BISECT_NOT_ACTIVE"
	CodeFileNotInSparse        Code = "FILE_NOT_IN_SPARSE"
	CodeOperationConflict      Code = "OPERATION_CONFLICT"
)

// Error is the concrete error type returned across the repository core's
// external interface. Every field beyond Code is optional.
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Details    map[string]any
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, New(code, "")) match on Code alone, so callers can
// build sentinel-style comparisons without allocating through New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	n := *e
	n.Suggestion = s
	return &n
}

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	n := *e
	n.Details = details
	return &n
}

// Sentinel errors for errors.Is checks against categories that don't
// need a dynamic message.
var (
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrChangeNotFound     = New(CodeChangeNotFound, "change not found")
	ErrChangeExists       = New(CodeChangeExists, "change already exists")
	ErrBookmarkNotFound   = New(CodeBookmarkNotFound, "bookmark not found")
	ErrBookmarkExists     = New(CodeBookmarkExists, "bookmark already exists")
	ErrTagNotFound        = New(CodeTagNotFound, "tag not found")
	ErrTagExists          = New(CodeTagExists, "tag already exists")
	ErrFileNotFound       = New(CodeFileNotFound, "file not found")
	ErrAmbiguousOperation = New(CodeAmbiguousOperation, "ambiguous operation")
	ErrMergeError         = New(CodeMergeError, "merge error")
	ErrStorageCorrupt     = New(CodeStorageCorrupt, "storage corrupt")
	ErrUnsupported        = New(CodeUnsupportedOperation, "operation not supported")
	ErrOperationConflict  = New(CodeOperationConflict, "operation log head moved")
	ErrBisectActive       = New(CodeBisectAlreadyActive, "bisect already active")
	ErrBisectNotActive    = New(CodeBisectNotActive, "bisect not active")
)

// IsRetryable returns true if the error is likely to succeed on retry, e.g.
// a transient network failure or a lost race on the operation log head.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case CodeOperationConflict, CodeNetworkError, CodePushRejected:
			return true
		}
	}
	return false
}

// IsUserActionRequired returns true if resolving the error needs a human
// decision rather than a mechanical retry (conflicts, divergent history).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case CodeMergeError, CodePushRejected, CodeAmbiguousOperation:
			return true
		}
	}
	return false
}
