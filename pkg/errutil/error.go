package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func newWithCause(code CoreStatus, msg string, err error, options ...Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

// NotFound reports an absent entity.
func NotFound(msg string, err error, options ...Option) error {
	return newWithCause(StatusNotFound, msg, err, options...)
}

// InvalidRequest reports a nonsensical combination of caller-supplied fields.
func InvalidRequest(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadRequest, msg, err, options...)
}

// InvalidState reports a transition the payment state machine does not allow.
func InvalidState(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnprocessableEntity, msg, err, options...)
}

// Conflict reports an optimistic version mismatch. Callers may re-read and retry.
func Conflict(msg string, err error, options ...Option) error {
	return newWithCause(StatusConflict, msg, err, options...)
}

// UpstreamFailure reports a failed call to the payment provider or another collaborator.
func UpstreamFailure(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadGateway, msg, err, options...)
}

func Internal(msg string, err error, options ...Option) error {
	return newWithCause(StatusInternal, msg, err, options...)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnauthorized, msg, err, options...)
}

func Forbidden(msg string, err error, options ...Option) error {
	return newWithCause(StatusForbidden, msg, err, options...)
}

// StatusOf returns the CoreStatus carried by err, or StatusInternal for foreign errors.
func StatusOf(err error) CoreStatus {
	if err == nil {
		return ""
	}
	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}
	return StatusInternal
}

// Is reports whether err carries the given status.
func Is(err error, status CoreStatus) bool {
	return err != nil && StatusOf(err) == status
}
