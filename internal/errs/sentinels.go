// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/http layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a request rejected before any state mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller without the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentLimit indicates the per-user in-flight transformation cap is reached.
	ErrConcurrentLimit = errors.New("too many concurrent transformations")

	// ErrTransformFailed indicates the AI provider call failed.
	ErrTransformFailed = errors.New("transformation failed")

	// ErrUploadFailed indicates the provider result could not be persisted to object storage.
	ErrUploadFailed = errors.New("upload failed")
)

// CodedError attaches a machine-readable code to a sentinel.
// errors.Is matches the wrapped sentinel.
type CodedError struct {
	Code string
	Msg  string
	Err  error
}

func (e *CodedError) Error() string { return e.Msg }

func (e *CodedError) Unwrap() error { return e.Err }

// WithCode wraps sentinel err with a code and a user-facing message.
func WithCode(err error, code, msg string) error {
	return &CodedError{Code: code, Msg: msg, Err: err}
}

// Code returns the code carried by err, or "" if there is none.
func Code(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
