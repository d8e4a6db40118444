package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	// KindInput covers malformed requests: bad range headers, unknown
	// language codes, out-of-bounds chapter indexes. No external calls
	// are made and nothing is retried.
	KindInput Kind = iota
	// KindNotFound covers missing books and missing cached artifacts.
	KindNotFound
	// KindUpstream covers slicing, speech-to-text and translation
	// failures. The enclosing multi-step operation aborts wholesale.
	KindUpstream
	// KindCache covers corrupt or unreadable artifact files.
	KindCache
	// KindResource covers local resource failures such as temp
	// directory creation. Fatal for the current request only.
	KindResource
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindNotFound:
		return "NotFound"
	case KindUpstream:
		return "Upstream"
	case KindCache:
		return "Cache"
	case KindResource:
		return "Resource"
	case KindInternal:
		return "Internal"
	default:
		return "Internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
