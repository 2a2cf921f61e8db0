// Package errors is the error representation of modelflow API.
//
// Handlers return *echo.HTTPError created here. Its message is rendered as
//
//	{"message": {"reason": "...", "advice": "..."}}
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/opst/modelflow/pkg/domain"
)

// ErrorResponse is the body of responses with error status.
type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

type ErrorMessage struct {
	// what has happened.
	Reason string `json:"reason"`

	// what the client can do. Optional.
	Advice string `json:"advice,omitempty"`

	// not exposed to clients. It is logged by the server.
	Cause error `json:"-"`
}

func (em *ErrorMessage) UnmarshalJSON(b []byte) error {
	var raw struct {
		Reason *string `json:"reason"`
		Advice string  `json:"advice"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Reason == nil {
		return errors.New(`required field missing: "reason"`)
	}
	*em = ErrorMessage{Reason: *raw.Reason, Advice: raw.Advice}
	return nil
}

func (em ErrorMessage) String() string {
	s := em.Reason
	if em.Advice != "" {
		s += " (" + em.Advice + ")"
	}
	if em.Cause != nil {
		s += fmt.Sprintf(" caused by: %s", em.Cause)
	}
	return s
}

func (em ErrorMessage) Error() string {
	return em.String()
}

func (em ErrorMessage) Unwrap() error {
	return em.Cause
}

type ErrorMessageOption func(*ErrorMessage)

func WithAdvice(advice string) ErrorMessageOption {
	return func(em *ErrorMessage) {
		if advice != "" {
			em.Advice = advice
		}
	}
}

func WithError(err error) ErrorMessageOption {
	return func(em *ErrorMessage) {
		if err != nil {
			em.Cause = err
		}
	}
}

// NewErrorMessage creates an HTTP error with the status code and the reason.
func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	em := ErrorMessage{Reason: reason}
	for _, opt := range opts {
		opt(&em)
	}
	return echo.NewHTTPError(code, em).SetInternal(em)
}

func NotFound() *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, "not found")
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusBadRequest, "bad request", WithAdvice(advice), WithError(err),
	)
}

func Conflict(reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(http.StatusConflict, reason, opts...)
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusInternalServerError, "unexpected error", WithError(err),
	)
}

// FromStore converts errors from model or workflow stores.
//
// domain.ErrMissing is NotFound, domain.ErrConflict is Conflict with reason
// onConflict, and others are InternalServerError.
func FromStore(err error, onConflict string) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrMissing):
		return NewErrorMessage(http.StatusNotFound, "not found", WithError(err))
	case errors.Is(err, domain.ErrConflict):
		return Conflict(onConflict, WithError(err))
	default:
		return InternalServerError(err)
	}
}
