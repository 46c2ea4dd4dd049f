package errcodes

import (
	"fmt"
	"net/http"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
	// Details is rendered next to the message when set. Lifecycle errors use it
	// to carry the kind of failure and the affected entry ids.
	Details map[string]interface{}
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	te.Details = err.Details
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// Unauthorized returns a 401 error with the given message.
func Unauthorized(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnauthorized,
		Message:  msg,
		Code:     "unauthorized",
	}
}

// Forbidden returns a 403 error with a message indicating the action is
// forbidden.
func Forbidden(action string) error {
	return &Error{
		HTTPCode: http.StatusForbidden,
		Message:  action + " is not allowed.",
		Code:     "forbidden",
	}
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		HTTPCode: http.StatusNotFound,
		Message:  resource + " not found.",
		Code:     "not_found",
	}
}

// Conflict returns a 409 error. It is used both when a transition is already
// running for an entry and when the backend reports a concurrent change.
func Conflict(msg string) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  msg,
		Code:     "conflict",
	}
}

// BadGateway returns a 502 error for transient failures talking to the
// backend.
func BadGateway(msg string) error {
	return &Error{
		HTTPCode: http.StatusBadGateway,
		Message:  msg,
		Code:     "network_error",
	}
}

// PartialFailure returns a 502 error for a transition whose target was
// created but whose source is still present.
func PartialFailure(msg string, details map[string]interface{}) error {
	return &Error{
		HTTPCode: http.StatusBadGateway,
		Message:  msg,
		Code:     "partial_failure",
		Details:  details,
	}
}

// Duplicate returns a 409 error for a creation that was held back because
// the collection already has the book. Details carry the matches.
func Duplicate(msg string, details map[string]interface{}) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  msg,
		Code:     "duplicate",
		Details:  details,
	}
}

func UnsupportedMediaType() error {
	return &Error{
		HTTPCode: http.StatusUnsupportedMediaType,
		Message:  "Unsupported Media Type",
		Code:     "unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  fmt.Sprintf("Unknown Parameter %q", param),
		Code:     "unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Malformed Payload",
		Code:     "malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Request body can't be empty.",
		Code:     "empty_request_body",
	}
}
