package tags

import (
	"fmt"
)

// TagError represents an error related to tag operations. Tag holds the
// identifier or id the operation was addressed to.
type TagError struct {
	Tag string
	Op  string
	Err error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag operation %s failed for tag %s: %v", e.Op, e.Tag, e.Err)
}

func (e *TagError) Unwrap() error {
	return e.Err
}
