package lifecycle

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
)

type ErrorKind string

const (
	ValidationError     ErrorKind = "VALIDATION"
	ConflictError       ErrorKind = "CONFLICT"
	NetworkError        ErrorKind = "NETWORK"
	NotFoundError       ErrorKind = "NOT_FOUND"
	PartialFailureError ErrorKind = "PARTIAL_FAILURE"
	UnauthorizedError   ErrorKind = "UNAUTHORIZED"
)

// Error is returned by every orchestrator operation that fails. For a partial
// failure Target holds the entry that was created and Source the entry that
// couldn't be removed. A NotFoundError with a Target means the target was
// created but the source had already gone.
type Error struct {
	Kind       ErrorKind
	Transition models.Transition
	Source     models.Ref
	Target     models.Entry
	CleanupID  *int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == PartialFailureError {
		return e.partialMessage()
	}
	if e.Kind == NotFoundError && e.Target != nil {
		return e.staleMessage()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As converts the error to an *errcodes.Error so the HTTP error handler can
// render it with its kind and the affected ids in the details.
func (e *Error) As(target interface{}) bool {
	t, ok := target.(**errcodes.Error)
	if !ok {
		return false
	}
	*t = e.errcode()
	return true
}

func (e *Error) details() map[string]interface{} {
	d := map[string]interface{}{
		"kind": e.Kind,
	}
	if e.Transition != "" {
		d["transition"] = e.Transition
	}
	if e.Source.ID != 0 {
		d["source"] = e.Source
	}
	if e.Target != nil {
		d["target"] = e.Target
	}
	if e.CleanupID != nil {
		d["cleanupId"] = *e.CleanupID
	}
	return d
}

func (e *Error) errcode() *errcodes.Error {
	if e.Kind == PartialFailureError {
		return errcodes.PartialFailure(e.partialMessage(), e.details()).(*errcodes.Error)
	}
	if e.Kind == NotFoundError && e.Target != nil {
		return &errcodes.Error{
			HTTPCode: http.StatusNotFound,
			Message:  e.staleMessage(),
			Code:     "not_found",
			Details:  e.details(),
		}
	}

	out := &errcodes.Error{}
	var inner *errcodes.Error
	if e.Err != nil && errors.As(e.Err, &inner) {
		*out = *inner
	} else {
		out.Message = e.Error()
		switch e.Kind {
		case ValidationError:
			out.HTTPCode, out.Code = http.StatusUnprocessableEntity, "validation_error"
		case ConflictError:
			out.HTTPCode, out.Code = http.StatusConflict, "conflict"
		case NotFoundError:
			out.HTTPCode, out.Code = http.StatusNotFound, "not_found"
		case UnauthorizedError:
			out.HTTPCode, out.Code = http.StatusUnauthorized, "unauthorized"
		case NetworkError, PartialFailureError:
			out.HTTPCode, out.Code = http.StatusBadGateway, "network_error"
		}
	}
	out.Details = e.details()
	return out
}

func (e *Error) partialMessage() string {
	title := ""
	if e.Target != nil {
		title = e.Target.Metadata().Title
	}
	return fmt.Sprintf("%q was added to %s but the original couldn't be removed from %s. Please delete it manually.",
		title, e.Transition.To().Label(), e.Source.Kind.Label())
}

func (e *Error) staleMessage() string {
	return fmt.Sprintf("%q was added to %s but was already gone from %s. The list is stale, please refresh.",
		e.Target.Metadata().Title, e.Transition.To().Label(), e.Source.Kind.Label())
}

// KindOf returns the kind of a lifecycle error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify maps a gateway error to the kind the caller should act on.
func classify(err error) ErrorKind {
	var e *errcodes.Error
	if !errors.As(err, &e) {
		return NetworkError
	}
	switch e.Code {
	case "validation_error", "validation_type_error":
		return ValidationError
	case "conflict":
		return ConflictError
	case "not_found":
		return NotFoundError
	case "unauthorized", "forbidden":
		return UnauthorizedError
	}
	return NetworkError
}
