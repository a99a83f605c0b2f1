package httpx

import (
	"fmt"
	"net/http"
)

// StatusError carries the HTTP status and the client facing message of a failed request.
type StatusError struct {
	Status  int
	Message string
	// Fields holds per field details for validation failures.
	Fields any
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func BadRequest(message string, err error) error {
	return &StatusError{Status: http.StatusBadRequest, Message: message, Err: err}
}

func NotFound(message string, err error) error {
	return &StatusError{Status: http.StatusNotFound, Message: message, Err: err}
}

func Unprocessable(message string, fields any, err error) error {
	return &StatusError{Status: http.StatusUnprocessableEntity, Message: message, Fields: fields, Err: err}
}

func BadGateway(message string, err error) error {
	return &StatusError{Status: http.StatusBadGateway, Message: message, Err: err}
}
