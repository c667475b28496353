package simplecms

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

// ErrorKind classifies errors returned by the Service.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"
	KindInvalidSlug      ErrorKind = "INVALID_SLUG"
	KindConflict         ErrorKind = "CONFLICT"
	KindDenied           ErrorKind = "DENIED"
	KindInternal         ErrorKind = "INTERNAL"
)

// Sentinels matching every *Error of the same kind through errors.Is.
var (
	// ErrNotFound indicates a missing content type or item, or an ownership mismatch
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}

	// ErrValidationFailed indicates a payload that does not satisfy its schema
	ErrValidationFailed = &Error{Kind: KindValidationFailed, Message: "validation failed"}

	// ErrInvalidSlug indicates a slug that normalizes to nothing
	ErrInvalidSlug = &Error{Kind: KindInvalidSlug, Message: "invalid slug"}

	// ErrConflict indicates a duplicate slug within a content type
	ErrConflict = &Error{Kind: KindConflict, Message: "conflict"}

	// ErrDenied indicates a before-hook veto
	ErrDenied = &Error{Kind: KindDenied, Message: "denied"}

	// ErrInternal indicates malformed stored data or a storage failure
	ErrInternal = &Error{Kind: KindInternal, Message: "internal error"}
)

// ErrUniqueViolation is returned by adapters when a write breaks a unique constraint.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Error is the error type returned by Service and Registry operations.
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	Violations []schema.Violation
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Veto builds the error a before-hook returns to deny an operation.
func Veto(msg string) error {
	if msg == "" {
		msg = "operation denied"
	}
	return &Error{Kind: KindDenied, Message: msg}
}

func notFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

func invalidSlug(op, raw string) error {
	return &Error{Kind: KindInvalidSlug, Op: op, Message: fmt.Sprintf("slug %q is empty after normalization", raw)}
}

func validationFailed(op string, violations []schema.Violation) error {
	return &Error{Kind: KindValidationFailed, Op: op, Message: "payload does not match content type schema", Violations: violations}
}

// fromValidation converts a validator error into a ValidationFailed error.
func fromValidation(op string, err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return validationFailed(op, verr.Violations)
	}
	return internal(op, err)
}

// denied wraps a before-hook error. An *Error returned by the hook keeps its kind.
func denied(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			cp := *e
			cp.Op = op
			return &cp
		}
		return e
	}
	return &Error{Kind: KindDenied, Op: op, Message: err.Error(), Err: err}
}

// asServiceError leaves *Error values alone and wraps everything else as internal.
func asServiceError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return internal(op, err)
}
