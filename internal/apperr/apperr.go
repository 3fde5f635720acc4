package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable tag describing the failure class. It is safe to show
// to users and to persist in version error messages.
type Kind string

const (
	NotFound         Kind = "not_found"
	ValidationError  Kind = "validation_error"
	ExtractionFailed Kind = "extraction_failed"
	IndexingFailed   Kind = "indexing_failed"
	RetrievalFailed  Kind = "retrieval_failed"
	UpstreamFailed   Kind = "upstream_failed"
)

// Error carries a kind tag and a human-readable detail. Details must
// never contain secrets such as API keys.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error with a formatted detail string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. A nil cause yields a plain tagged error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, walking the wrap chain. Untagged
// errors report an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
