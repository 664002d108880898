// Package exception provides the error type shared by every stage of the import pipeline.
// Errors are classified by scope: job-level errors fail the whole upload, record-level
// errors are skippable and only mark the record they belong to.
package exception

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error code. It is what ends up in upload log
// entries and job notes, so values must never change once released.
type Code string

// Job-level codes.
const (
	CodeUploadFileEmpty     Code = "UploadFileEmpty"
	CodeFileHasEmptyUnit    Code = "FileHasEmptyUnit"
	CodeFileIsCorrupt       Code = "FileIsCorrupt"
	CodeUnsupportedFileType Code = "UnsupportedFileType"
	CodeInvalidMapping      Code = "InvalidMapping"
	CodeSourceUnavailable   Code = "SourceUnavailable"
	CodeLogWriteFailed      Code = "UploadLogWriteFailed"
)

// Record-level codes.
const (
	CodeExternalIDRequired     Code = "ExternalIdIsRequired"
	CodeInvalidValue           Code = "HasInvalidValue"
	CodeUnitAlreadyExists      Code = "UnitAlreadyExists"
	CodeUnitNotFound           Code = "UnitNotFound"
	CodeUnitLookupFailed       Code = "UnitLookupFailed"
	CodeConcurrentModification Code = "ConcurrentModification"
	CodeNotSavedByPriority     Code = "NotSavedByPriority"
	CodeSaveFailed             Code = "SaveFailed"
	CodeAnalysisFault          Code = "AnalysisFault"
)

// FieldCode builds a field-scoped code such as "NameIsRequired" from a target
// field name and a suffix.
func FieldCode(field, suffix string) Code {
	if field == "" {
		return Code(suffix)
	}
	return Code(strings.ToUpper(field[:1]) + field[1:] + suffix)
}

// BatchError is the error type produced by pipeline components.
// It holds the module where the error occurred, a code, a message, the wrapped
// original error, and flags describing how the caller may react to it.
type BatchError struct {
	// Module indicates where the error occurred (e.g. "parser", "mapper", "save").
	Module string
	// Code is the stable error code.
	Code Code
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error

	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a new BatchError instance.
func NewBatchError(module string, code Code, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Code:        code,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewJobError creates a fatal error that fails the whole job.
func NewJobError(module string, code Code, message string, originalErr error) *BatchError {
	return NewBatchError(module, code, message, originalErr, false, false)
}

// NewRecordError creates a skippable error that is attributed to a single record.
func NewRecordError(module string, code Code, message string, originalErr error) *BatchError {
	return NewBatchError(module, code, message, originalErr, true, false)
}

// NewRecordErrorf is NewRecordError with a formatted message and no wrapped error.
func NewRecordErrorf(module string, code Code, format string, a ...interface{}) *BatchError {
	return NewRecordError(module, code, fmt.Sprintf(format, a...), nil)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, e.Code, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is a BatchError carrying the same code.
// A target without a code matches any BatchError.
func (e *BatchError) Is(target error) bool {
	t, ok := target.(*BatchError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// Sentinel returns a code-only BatchError usable as an errors.Is target.
func Sentinel(code Code) error {
	return &BatchError{Code: code}
}

// CodeOf returns the code of the first BatchError in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsSkippable reports whether err is a record-level error.
func IsSkippable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsSkippable()
	}
	return false
}

// IsTemporary determines if an error is worth retrying on the next poll
// (lost connections, timeouts). A BatchError's own flag takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsCancellation reports whether err only signals that the context was cancelled.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrOptimisticLockingFailure marks an update that lost a version check.
var ErrOptimisticLockingFailure = errors.New("optimistic locking failure")

// NewOptimisticLockingFailure creates the record-level error for a lost version check.
func NewOptimisticLockingFailure(module, message string, originalErr error) *BatchError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewRecordError(module, CodeConcurrentModification, message, errToWrap)
}

// IsOptimisticLockingFailure determines if an error indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// faultCodes carry the underlying error text into notes.
var faultCodes = map[Code]bool{
	CodeAnalysisFault:    true,
	CodeSaveFailed:       true,
	CodeUnitLookupFailed: true,
}

// ExtractErrorMessage returns the text stored in job notes and log entries.
// For BatchError it is "<Code>: <Message>", followed by the wrapped error's
// text for faults, otherwise err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		msg := string(be.Code)
		if be.Message != "" {
			msg = fmt.Sprintf("%s: %s", be.Code, be.Message)
		}
		if faultCodes[be.Code] && be.OriginalErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, be.OriginalErr)
		}
		return msg
	}
	return err.Error()
}
