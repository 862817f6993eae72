// Package errors provides the failure taxonomy for the thumbnail pipeline.
// Every failure is classified once, at the point of detection, into a closed
// set of codes; each code is statically marked retryable or terminal and that
// classification is the single source of truth the queue consults when
// deciding whether to requeue an attempt.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies one failure class.
type Code string

const (
	// Terminal codes: retrying the same input cannot succeed.
	CodeUnsupportedType    Code = "UNSUPPORTED_TYPE"
	CodePDFPassword        Code = "PDF_PASSWORD"
	CodeImageDecodeFailure Code = "IMAGE_DECODE_FAILURE"
	CodeDocConvertFailure  Code = "DOCX_CONVERT_FAILURE"
	CodeSizeOverLimit      Code = "SIZE_OVER_LIMIT"

	// Retryable codes: the same operation may succeed on a later attempt.
	CodeStorageReadFailure  Code = "STORAGE_READ_FAILURE"
	CodeStorageWriteFailure Code = "STORAGE_WRITE_FAILURE"
	CodePDFRenderFailure    Code = "PDF_RENDER_FAILURE"
	CodeDocConvertTimeout   Code = "DOCX_CONVERT_TIMEOUT"
	CodeTransientSpawn      Code = "TRANSIENT_SPAWN_FAILURE"
	CodeTransientNetwork    Code = "TRANSIENT_NETWORK_FAILURE"
	CodeTimeout             Code = "TIMEOUT_ERROR"
)

// retryable is the static classification table. Codes absent from the table
// do not exist; classification never happens at a call site.
var retryable = map[Code]bool{
	CodeUnsupportedType:    false,
	CodePDFPassword:        false,
	CodeImageDecodeFailure: false,
	CodeDocConvertFailure:  false,
	CodeSizeOverLimit:      false,

	CodeStorageReadFailure:  true,
	CodeStorageWriteFailure: true,
	CodePDFRenderFailure:    true,
	CodeDocConvertTimeout:   true,
	CodeTransientSpawn:      true,
	CodeTransientNetwork:    true,
	CodeTimeout:             true,
}

// Retryable reports the static classification of a code. Unknown codes are
// conservatively treated as retryable.
func (c Code) Retryable() bool {
	r, ok := retryable[c]
	if !ok {
		return true
	}
	return r
}

// RetryableCodes returns every code classified retryable, sorted, for
// store queries that revert retryable failures before a requeue.
func RetryableCodes() []Code {
	out := make([]Code, 0, len(retryable))
	for c, r := range retryable {
		if r {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Error is the failure record carried from detection point to status row.
type Error struct {
	// Code is the taxonomy classification.
	Code Code
	// Message is the human-readable description.
	Message string
	// Op is the operation that failed (e.g. "render.pdf").
	Op string
	// Err is the underlying error.
	Err error
	// Stack is captured at creation for diagnostics.
	Stack []Frame
}

// Frame is a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether this error's code is retryable.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// StackTrace returns the captured stack formatted one frame per line.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an error preserving an existing classification. Unclassified
// causes get the generic retryable timeout code rather than being dropped.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Code:    e.Code,
			Message: message,
			Op:      op,
			Err:     err,
			Stack:   captureStack(2),
		}
	}
	return &Error{
		Code:    CodeTimeout,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, op string, format string, args ...any) *Error {
	return Wrap(err, op, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error under a specific classification, overriding
// any classification the cause carries.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// GetCode extracts the classification from an error. An unclassified error
// maps to the generic retryable timeout code, so unexpected failures are
// retried rather than silently dropped.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTimeout
}

// GetMessage returns the human-readable message of a classified error, or
// the raw error text for unclassified ones.
func GetMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsRetryable reports whether an error may be retried.
func IsRetryable(err error) bool {
	return GetCode(err).Retryable()
}

// IsCode checks whether an error carries a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()
		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}
		frames = append(frames, Frame{
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
