// Package ledger implements the Assignment Ledger: the exclusivity
// mechanism binding each lead to at most one tenant at a time.
//
// Assign is the single most safety-critical operation in the platform.
// The repository's Claim must be linearizable per lead: under concurrent
// claims for the same lead exactly one caller wins and every other caller
// gets ErrAlreadyAssigned. The Postgres implementation locks the lead row
// with FOR UPDATE SKIP LOCKED and is backstopped by a partial unique
// index on non-released assignments.
package ledger
