package engine

import "errors"

var (
	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidPerformedDate is returned when a completion date cannot be parsed
	ErrInvalidPerformedDate = errors.New("invalid performed date")
)
