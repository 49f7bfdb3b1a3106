package ledger

import "errors"

// Sentinel errors for the assignment ledger.
var (
	// ErrAlreadyAssigned is a contention outcome, not a bug: a concurrent
	// caller claimed the lead first. Callers move on to the next candidate
	// and must never retry the same lead.
	ErrAlreadyAssigned = errors.New("lead already has an active assignment")

	// ErrInvalidTransition indicates a caller logic bug, e.g. releasing a
	// converted assignment. Surfaced loudly, never swallowed.
	ErrInvalidTransition = errors.New("invalid assignment transition")

	ErrNotFound = errors.New("assignment not found")
)
