package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the store, the upsert engine and the seeding orchestrator.
// Match them with errors.Is; the typed errors below carry the details.
var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrConflict            = errors.New("conflict")
	ErrStorage             = errors.New("storage error")
)

// NotFoundError reports a missing entity or owner reference.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConstraintViolationError reports a failed field invariant or an unresolved owner reference.
type ConstraintViolationError struct {
	Entity EntityType
	Field  string
	Reason string
	Err    error
}

func (e *ConstraintViolationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s", e.Entity, e.Field)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrConstraintViolation.
func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

// Unwrap exposes the cause, typically a NotFoundError for dangling owner references.
func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// ConflictError reports a natural-key collision detected by the store.
type ConflictError struct {
	Entity EntityType
	Key    string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with natural key %s already exists", e.Entity, e.Key)
}

// Is matches ErrConflict.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError reports a failure of the underlying file storage capability.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Unwrap exposes the backend error.
func (e *StorageError) Unwrap() error { return e.Err }

func violation(entity EntityType, field, reason string) error {
	return &ConstraintViolationError{Entity: entity, Field: field, Reason: reason}
}

// MissingOwner builds the error returned when a foreign key does not resolve.
func MissingOwner(entity EntityType, field string, owner EntityType, id string) error {
	return &ConstraintViolationError{
		Entity: entity,
		Field:  field,
		Reason: "owner does not exist",
		Err:    NotFoundError{Entity: owner, ID: id},
	}
}
