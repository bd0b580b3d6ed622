// Package apperr maps transport failures onto the small set of error kinds
// the rest of the application reasons about.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the normalized failure taxonomy.
type Kind int

const (
	// KindOther covers 5xx, unmapped 4xx, network failures and timeouts.
	// It is not recoverable and must reach a top-level handler.
	KindOther Kind = iota

	// KindBadInput indicates the server rejected the request body.
	KindBadInput

	// KindNotFound indicates the addressed record does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// TransportError is what the HTTP layer returns for a failed request.
// Status is zero when no response was received.
type TransportError struct {
	Method  string
	URL     string
	Status  int
	Message string
	Body    json.RawMessage
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

func (e *TransportError) Unwrap() error { return e.Err }

// Error is a classified failure wrapping its transport cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Body returns the raw response body of the cause, if any. For BadInput
// this is the validation payload.
func (e *Error) Body() json.RawMessage {
	var te *TransportError
	if errors.As(e.Cause, &te) {
		return te.Body
	}
	return nil
}

// Fields decodes field-level validation messages from a
// {"fields": {"title": "required"}} body. Nil when there are none.
func (e *Error) Fields() map[string]string {
	body := e.Body()
	if len(body) == 0 {
		return nil
	}
	var payload struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload.Fields
}

// Classify maps err onto a Kind. It is total: every non-nil error yields
// exactly one kind, and classifying an already classified error returns it
// unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: kindFor(err), Cause: err}
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	if ae := Classify(err); ae != nil {
		return ae.Kind
	}
	return KindOther
}

func kindFor(err error) Kind {
	var te *TransportError
	if !errors.As(err, &te) {
		return KindOther
	}
	switch te.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindBadInput
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}
