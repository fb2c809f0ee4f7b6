package store

import "fmt"

// NotFoundError reports a task or probe reference that does not exist.
type NotFoundError struct {
	Kind string // "task" or "probe"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// StorageError wraps a backend write or schema failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
