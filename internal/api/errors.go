package api

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	msgTitleRequired = "Title is required"
	msgInvalidBody   = "Invalid request body"
	msgInvalidID     = "Invalid task id"
	msgNoRoute       = "Resource not found"
	msgNoMethod      = "Method not allowed"

	opList   = "An error occurred while fetching tasks"
	opGet    = "An error occurred while fetching the task"
	opCreate = "An error occurred while creating the task"
	opUpdate = "An error occurred while updating the task"
	opDelete = "An error occurred while deleting the task"
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports a task id that does not exist.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Task with id %d not found", e.ID)
}

// StoreError wraps any persistence failure. Op is the summary shown to clients.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// statusAndBody maps a service error to its HTTP status and response body.
func statusAndBody(err error) (int, ErrorResponse) {
	var (
		verr *ValidationError
		nerr *NotFoundError
		serr *StoreError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: verr.Msg}
	case errors.As(err, &nerr):
		return http.StatusNotFound, ErrorResponse{Error: nerr.Error()}
	case errors.As(err, &serr):
		return http.StatusInternalServerError, ErrorResponse{Error: serr.Op, Message: serr.Err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "An unexpected error occurred", Message: err.Error()}
	}
}
