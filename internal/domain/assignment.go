package domain

import "time"

// AssignmentStatus enumerates the lifecycle states of a lead-tenant binding.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentReleased  AssignmentStatus = "released"
	AssignmentConverted AssignmentStatus = "converted"
)

// AssignmentMethod records how a lead ended up bound to a tenant.
type AssignmentMethod string

const (
	MethodAllocator AssignmentMethod = "allocator"
	MethodManual    AssignmentMethod = "manual"
	MethodImported  AssignmentMethod = "imported"
)

// ReplyIntent classifies a lead's reply, set by the outcome-reporting caller.
type ReplyIntent string

const (
	IntentInterested    ReplyIntent = "interested"
	IntentNotInterested ReplyIntent = "not_interested"
	IntentReferral      ReplyIntent = "referral"
	IntentOutOfOffice   ReplyIntent = "out_of_office"
	IntentUnknown       ReplyIntent = "unknown"
)

// AssignmentRecord binds one lead to exactly one tenant. At most one
// non-released record may exist per lead at any time; that exclusivity is
// enforced by the ledger's claim path and backstopped by a partial unique
// index in the database.
//
// A converted assignment is terminal: the lead stays bound to that tenant
// even if pool-level flags are set afterwards. A released assignment
// returns the lead to the pool; the next assignment starts with zero
// touches and no visibility into this record's history.
type AssignmentRecord struct {
	ID       string           `json:"id" db:"id"`
	LeadID   string           `json:"lead_id" db:"lead_id"`
	TenantID string           `json:"tenant_id" db:"tenant_id"`
	Method   AssignmentMethod `json:"method" db:"method"`
	Status   AssignmentStatus `json:"status" db:"status"`

	AssignedAt    time.Time  `json:"assigned_at" db:"assigned_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty" db:"released_at"`
	ReleaseReason string     `json:"release_reason,omitempty" db:"release_reason"`
	ConvertedAt   *time.Time `json:"converted_at,omitempty" db:"converted_at"`
	Outcome       string     `json:"outcome,omitempty" db:"outcome"`

	FirstContactAt *time.Time `json:"first_contact_at,omitempty" db:"first_contact_at"`
	LastContactAt  *time.Time `json:"last_contact_at,omitempty" db:"last_contact_at"`
	TouchCount     int        `json:"touch_count" db:"touch_count"`

	// ChannelLastUsed tracks the most recent touch per channel, for
	// per-channel cooldown checks. Keys are the channels already used.
	ChannelLastUsed map[Channel]time.Time `json:"channel_last_used,omitempty" db:"-"`

	Replied     bool        `json:"replied" db:"replied"`
	RepliedAt   *time.Time  `json:"replied_at,omitempty" db:"replied_at"`
	ReplyIntent ReplyIntent `json:"reply_intent,omitempty" db:"reply_intent"`
}

// ChannelsUsed returns the set of channels this assignment has touched,
// in the stable AllChannels order.
func (a *AssignmentRecord) ChannelsUsed() []Channel {
	var out []Channel
	for _, c := range AllChannels {
		if _, ok := a.ChannelLastUsed[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IsTerminal returns true if the assignment can never transition again.
func (a *AssignmentRecord) IsTerminal() bool {
	return a.Status == AssignmentConverted
}
