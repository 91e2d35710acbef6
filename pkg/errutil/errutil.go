package errutil

import (
	"errors"
	"net/http"
)

type HttpError struct {
	code int
	err  error
}

func (e *HttpError) Error() string {
	if e.err == nil {
		return http.StatusText(e.code)
	}
	return e.err.Error()
}

func (e *HttpError) Unwrap() error {
	return e.err
}

func (e *HttpError) Code() int {
	return e.code
}

func newHttpError(code int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(code))
	}
	return &HttpError{
		code: code,
		err:  err,
	}
}

func ValidationError(err error) error {
	return newHttpError(http.StatusBadRequest, err)
}

func BadRequestError(err error) error {
	return newHttpError(http.StatusBadRequest, err)
}

func UnauthorizedError(err error) error {
	return newHttpError(http.StatusUnauthorized, err)
}

func NotFoundError(err error) error {
	return newHttpError(http.StatusNotFound, err)
}

func ConflictError(err error) error {
	return newHttpError(http.StatusConflict, err)
}

func ServiceUnavailableError(err error) error {
	return newHttpError(http.StatusServiceUnavailable, err)
}

func InternalError(err error) error {
	return newHttpError(http.StatusInternalServerError, err)
}

// ParseHttpError maps err to a status code and a message safe to return.
// The code comes from the first HttpError in the chain; errors without one
// are reported as 500 with a generic message.
func ParseHttpError(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		if httpErr.code == http.StatusInternalServerError {
			return httpErr.code, http.StatusText(http.StatusInternalServerError)
		}
		return httpErr.code, err.Error()
	}

	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
