// Package pool implements the Lead Record Store: the platform-wide,
// deduplicated repository of every lead ever discovered.
//
// All lead mutation goes through this package. Enrichment providers feed
// candidates into Upsert, outcome events set the global bounced and
// unsubscribed flags, and the allocator reads candidates through
// FindCandidates. Nothing else writes lead rows.
package pool
