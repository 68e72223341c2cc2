package engagement

import (
	"fmt"

	"github.com/google/uuid"
)

// PostError represents an error related to post operations
type PostError struct {
	PostID uuid.UUID
	Op     string
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post operation %s failed for post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}
