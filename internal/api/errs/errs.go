// Package errs provides the API error model and maps domain errors onto it.
package errs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
)

// ErrCode is a machine readable error code.
type ErrCode struct {
	value  string
	status int
}

// Value returns the code string.
func (ec ErrCode) Value() string { return ec.value }

// HTTPStatus returns the status the code is served with.
func (ec ErrCode) HTTPStatus() int { return ec.status }

// String implements fmt.Stringer.
func (ec ErrCode) String() string { return ec.value }

var (
	InvalidArgument   = ErrCode{value: "invalid_argument", status: http.StatusBadRequest}
	NotFound          = ErrCode{value: "not_found", status: http.StatusNotFound}
	MalformedReport   = ErrCode{value: "malformed_report", status: http.StatusUnprocessableEntity}
	EngineUnavailable = ErrCode{value: "engine_unavailable", status: http.StatusBadGateway}
	SubprocessFailure = ErrCode{value: "subprocess_failure", status: http.StatusBadGateway}
	Unavailable       = ErrCode{value: "unavailable", status: http.StatusServiceUnavailable}
	Internal          = ErrCode{value: "internal", status: http.StatusInternalServerError}
)

// Error is the JSON error body returned by the API.
type Error struct {
	Code    ErrCode `json:"-"`
	Message string  `json:"message"`
}

// New wraps err with code.
func New(code ErrCode, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

// Newf builds an Error from a format string.
func Newf(code ErrCode, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// FromDomain maps an error returned by the orchestration layer onto its API
// error code.
func FromDomain(err error) *Error {
	switch {
	case errors.Is(err, scanning.ErrInvalidTarget):
		return New(InvalidArgument, err)
	case errors.Is(err, scanning.ErrMalformedReport):
		return New(MalformedReport, err)
	case errors.Is(err, scanning.ErrEngineUnavailable):
		return New(EngineUnavailable, err)
	case errors.Is(err, scanning.ErrSubprocessFailure):
		return New(SubprocessFailure, err)
	case errors.Is(err, scanning.ErrRunNotFound):
		return New(NotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(Unavailable, err)
	default:
		return New(Internal, err)
	}
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Encode implements web.Encoder.
func (e *Error) Encode() ([]byte, string, error) {
	data, err := json.Marshal(struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: e.Code.Value(), Message: e.Message})
	return data, "application/json", err
}

// HTTPStatus implements the web package httpStatus interface.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// Equal reports whether e carries code.
func (e *Error) Equal(code ErrCode) bool { return e.Code == code }

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Check validates val using its `validate` struct tags and returns a single
// error describing every failed field.
func Check(val any) error {
	if err := getValidator().Struct(val); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}

		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed on %q", fe.Field(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
