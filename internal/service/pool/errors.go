package pool

import "errors"

// Sentinel errors for the lead store service layer.
var (
	ErrNotFound       = errors.New("lead not found")
	ErrMissingEmail   = errors.New("lead candidate has no email")
	ErrMissingID      = errors.New("lead candidate has no external id")
	ErrDuplicateEmail = errors.New("lead email already exists")
)
