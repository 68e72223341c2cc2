package mediastore

import (
	"errors"
	"fmt"
)

// ErrRefChanged is returned by Repository.SwapBlob when the stored blob
// reference no longer equals the expected one.
var ErrRefChanged = errors.New("blob reference changed")

// ObjectError represents an error related to object operations
type ObjectError struct {
	Name string
	Op   string
	Err  error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object operation %s failed for %q: %v", e.Op, e.Name, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
