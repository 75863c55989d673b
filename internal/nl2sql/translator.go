package nl2sql

import (
	"context"
	"errors"

	"github.com/healthlens/healthlens/internal/schema"
)

// ErrNoDataLoaded is returned when a translation is requested for a session
// that has no datasets. Callers surface it as a user-facing hint to upload
// data first.
var ErrNoDataLoaded = errors.New("nl2sql: no datasets loaded in session")

type Request struct {
	SessionID string
	Question  string
	Tables    []schema.Table
	RowLimit  int
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
