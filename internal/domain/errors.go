package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is against these sentinels.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReference = errors.New("invalid reference")
	ErrConflict         = errors.New("conflict")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrCorruptHierarchy = errors.New("corrupt hierarchy")
	ErrInvalidImport    = errors.New("invalid import")
	ErrValidation       = errors.New("validation error")
)

// Error carries an error kind plus the entity and id it concerns, so the CLI
// and HTTP layers can render a precise message without string matching.
type Error struct {
	Kind   error
	Entity string
	ID     int64
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" && e.ID != 0 {
		msg = fmt.Sprintf("%s %d %s", e.Entity, e.ID, msg)
	} else if e.Entity != "" {
		msg = fmt.Sprintf("%s %s", e.Entity, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound builds a typed not-found error for entity/id.
func NotFound(entity string, id int64) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InvalidReference reports a dangling project or parent reference on write.
func InvalidReference(entity string, id int64) error {
	return &Error{Kind: ErrInvalidReference, Entity: entity, ID: id}
}

// Conflict reports a delete blocked by dependents.
func Conflict(entity string, id int64, detail string) error {
	return &Error{Kind: ErrConflict, Entity: entity, ID: id, Detail: detail}
}

// CycleDetected reports a parent assignment that would loop the hierarchy.
func CycleDetected(taskID int64) error {
	return &Error{Kind: ErrCycleDetected, Entity: "task", ID: taskID}
}

// CorruptHierarchy reports an already-cyclic tree discovered during a read.
func CorruptHierarchy(taskID int64) error {
	return &Error{Kind: ErrCorruptHierarchy, Entity: "task", ID: taskID}
}

// InvalidImport reports a referential or structural violation in an imported
// document.
func InvalidImport(detail string) error {
	return &Error{Kind: ErrInvalidImport, Detail: detail}
}

// Validation reports a bad field value (empty title, malformed date, ...).
func Validation(detail string) error {
	return &Error{Kind: ErrValidation, Detail: detail}
}
