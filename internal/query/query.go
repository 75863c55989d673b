package query

import (
	"context"
	"time"
)

type Request struct {
	SessionID string
	SQL       string
	RowLimit  int
}

type Result struct {
	Columns     []string
	ColumnTypes []string
	Rows        [][]any
	Duration    time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ExecutionError marks a failure inside the database while running an
// otherwise well-formed statement, as opposed to an infrastructure fault.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
