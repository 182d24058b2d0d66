// Package apperr defines the error taxonomy shared across Ansuz components.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across layers.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate id")
	ErrIO         = errors.New("io failure")
	ErrDrift      = errors.New("index drift detected")
)

// NotFound reports an unknown note or link target.
type NotFound struct {
	ID string
}

func (e *NotFound) Error() string { return fmt.Sprintf("note %s: not found", e.ID) }
func (e *NotFound) Is(target error) bool {
	return target == ErrNotFound
}

// Validation reports a rejected field value (bad note type, unknown link
// type, malformed id, empty title and so on).
type Validation struct {
	Field  string
	Reason string
}

func (e *Validation) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }
func (e *Validation) Is(target error) bool {
	return target == ErrValidation
}

// Duplicate reports an id collision on create.
type Duplicate struct {
	ID string
}

func (e *Duplicate) Error() string { return fmt.Sprintf("note %s: id already exists", e.ID) }
func (e *Duplicate) Is(target error) bool {
	return target == ErrDuplicate
}

// IO reports a file operation failure. The atomic write discipline
// guarantees no partial file is ever visible when this is returned.
type IO struct {
	Op   string
	Path string
	Err  error
}

func (e *IO) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *IO) Unwrap() error { return e.Err }
func (e *IO) Is(target error) bool {
	return target == ErrIO
}

// Drift reports a detected mismatch between the file store and the index.
// It is not fatal: the caller should trigger a rebuild rather than abort.
type Drift struct {
	Reason string
}

func (e *Drift) Error() string { return fmt.Sprintf("index drift: %s", e.Reason) }
func (e *Drift) Is(target error) bool {
	return target == ErrDrift
}
