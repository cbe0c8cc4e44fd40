// Package errors defines the sentinel errors shared across the ingestion
// pipeline and the typed errors each stage reports: ParseError for
// unreadable source containers, DecodeError for unreadable artifacts and
// BulkIndexError for search-engine bulk failures.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrParse        = errors.New("source container unreadable")
	ErrDecode       = errors.New("artifact decode failed")
	ErrBulkIndex    = errors.New("bulk index failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("operation timed out")
)

// ParseError reports a source container that cannot be read at all.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// NewParseError wraps err as a ParseError for source.
func NewParseError(source string, err error) *ParseError {
	return &ParseError{Source: source, Err: err}
}

// DecodeError reports a retrieved artifact that is not valid text or JSON.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// NewDecodeError wraps err as a DecodeError for the named artifact.
func NewDecodeError(name string, err error) *DecodeError {
	return &DecodeError{Name: name, Err: err}
}

// BulkIndexError carries the first item of a bulk response that reported an
// error. The raw item is kept verbatim so callers can log it for diagnosis.
type BulkIndexError struct {
	Item json.RawMessage
}

func (e *BulkIndexError) Error() string {
	return fmt.Sprintf("bulk error: %s", string(e.Item))
}

func (e *BulkIndexError) Is(target error) bool {
	return target == ErrBulkIndex
}

// AppError attaches a human readable message to a sentinel.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsDocumentLocal reports whether err is a per-document failure that the
// batch loop should log and skip rather than abort on.
func IsDocumentLocal(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrDecode)
}
