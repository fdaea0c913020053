package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure. The string value is what clients see in
// the "type" field of an error response.
type Kind string

const (
	KindFetch      Kind = "FETCH_ERROR"
	KindGeneration Kind = "GENERATION_ERROR"
	KindStorage    Kind = "STORAGE_ERROR"
	KindDatabase   Kind = "DATABASE_ERROR"
	KindValidation Kind = "VALIDATION_ERROR"
	KindConflict   Kind = "CONFLICT_ERROR"
)

type Error struct {
	Kind     Kind
	Message  string
	NotFound bool
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Fetch(message string, err error) *Error      { return New(KindFetch, message, err) }
func Generation(message string, err error) *Error { return New(KindGeneration, message, err) }
func Storage(message string, err error) *Error    { return New(KindStorage, message, err) }
func Database(message string, err error) *Error   { return New(KindDatabase, message, err) }
func Conflict(message string, err error) *Error   { return New(KindConflict, message, err) }

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

// NotFound is a FETCH_ERROR for a root record that neither id strategy located.
func NotFound(message string) *Error {
	return &Error{Kind: KindFetch, Message: message, NotFound: true}
}

// KindOf reports the Kind of the first *Error in err's chain. Untyped errors
// are treated as generation failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneration
}

func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.NotFound
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsNotFound(err) {
		return http.StatusNotFound
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of an error inside a response.
type Body struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func ToBody(err error) *Body {
	if err == nil {
		return nil
	}
	return &Body{Type: KindOf(err), Message: err.Error()}
}
