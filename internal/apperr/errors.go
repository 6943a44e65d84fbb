// Package apperr defines the error taxonomy shared across the application.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownLabel = errors.New("unknown label")
	ErrUnknownEdge  = errors.New("unknown edge type")
	ErrTarget       = errors.New("scan target unavailable")
)

// FieldError describes a single offending property path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports every schema violation found in one property map.
type ValidationError struct {
	Label  string       `json:"label"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Path + ": " + f.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Label, strings.Join(msgs, "; "))
}

// ConflictError is raised by reconciliation under the "fail" strategy.
type ConflictError struct {
	EntityID  string `json:"entityId"`
	Label     string `json:"label"`
	GraphHash string `json:"graphHash"`
	DocHash   string `json:"docHash"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync conflict on %s (%s): graph %s vs doc %s", e.EntityID, e.Label, e.GraphHash, e.DocHash)
}

// StorageError wraps a backend failure, tagging whether a retry may help.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a storage error worth retrying.
func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Transient
}
