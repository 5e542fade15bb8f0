// backend/src/models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDataSource = errors.New("data source unavailable")
)

// LookupMode selects how the client locator interprets its query.
type LookupMode string

const (
	ByIdentifier LookupMode = "cpf"
	ByName       LookupMode = "nome"
)

// NotFoundError is returned when no registry row matches a lookup.
type NotFoundError struct {
	Query       string
	Mode        LookupMode
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no client found for %s %q", e.Mode, e.Query)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DataSourceError reports a missing, unreadable or malformed sheet.
type DataSourceError struct {
	Op    string
	Sheet string
	Err   error
}

func (e *DataSourceError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("%s: sheet %q: %v", e.Op, e.Sheet, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

func (e *DataSourceError) Is(target error) bool { return target == ErrDataSource }
