package assign

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEligibleUsers is returned when the roster has no eligible users.
	// Nothing is written.
	ErrNoEligibleUsers = errors.New("no eligible users for task assignment")
	// ErrBatchInProgress is returned when another batch is still running.
	ErrBatchInProgress = errors.New("an assignment batch is already in progress")
	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown assignment strategy")
)

// WriteFailure records one instance the store refused to create.
// UserID is empty for unassigned instances.
type WriteFailure struct {
	TemplateID string
	Title      string
	UserID     string
	Err        error
}

func (f *WriteFailure) Error() string {
	if f.UserID == "" {
		return fmt.Sprintf("create %q (unassigned): %v", f.Title, f.Err)
	}
	return fmt.Sprintf("create %q for user %s: %v", f.Title, f.UserID, f.Err)
}

func (f *WriteFailure) Unwrap() error {
	return f.Err
}
