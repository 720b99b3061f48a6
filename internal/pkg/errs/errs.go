package errs

import (
	"errors"
	"fmt"
)

// Kind sentinels. Every error produced by this service wraps exactly one of
// these, so callers can branch with errors.Is instead of matching text.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrBackend       = errors.New("storage backend error")
	ErrConversion    = errors.New("conversion failed")
	ErrEmptyDocument = errors.New("document produced no content chunks")
	ErrEmbedding     = errors.New("embedding failed")
	ErrDatabase      = errors.New("database error")
)

type kindError struct {
	kind  error
	cause error
	msg   string
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind.Error(), e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind.Error(), e.msg)
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// New builds an error of the given kind without an underlying cause.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func Newf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to cause. A nil cause yields nil so call sites can
// wrap return values unconditionally.
func Wrap(kind error, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, cause: cause, msg: msg}
}

func Wrapf(kind error, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, cause: cause, msg: fmt.Sprintf(format, args...)}
}

// Message returns the human-readable part of an error without the kind
// prefix, for surfaces like a persisted task error_message where the kind
// is tracked separately. Non-kind errors pass through unchanged.
func Message(err error) string {
	var ke *kindError
	if !errors.As(err, &ke) {
		return err.Error()
	}
	if ke.cause != nil {
		return fmt.Sprintf("%s: %v", ke.msg, ke.cause)
	}
	return ke.msg
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsEmptyDocument(err error) bool {
	return errors.Is(err, ErrEmptyDocument)
}
