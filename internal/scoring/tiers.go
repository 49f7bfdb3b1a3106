package scoring

import "github.com/agencyos/leadpool/internal/domain"

// tierTable maps score thresholds to tiers. Entries are ordered by
// descending minimum and together cover the full 0-100 range, so every
// score lands in exactly one tier. This is the single source of truth;
// nothing else in the codebase declares tier boundaries.
var tierTable = []struct {
	Min  int
	Tier domain.Tier
}{
	{85, domain.TierHot},
	{60, domain.TierWarm},
	{35, domain.TierCool},
	{20, domain.TierCold},
	{0, domain.TierDead},
}

// TierForScore returns the tier for a total score. Scores are clamped to
// [0, 100] before lookup.
func TierForScore(total int) domain.Tier {
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	for _, row := range tierTable {
		if total >= row.Min {
			return row.Tier
		}
	}
	return domain.TierDead
}

// tierChannels is the canonical tier -> allowed-channel table, consumed by
// the JIT validator. The sets are nested: each tier allows a superset of
// the tier below it, so upgrading a lead's tier never revokes a channel.
var tierChannels = map[domain.Tier][]domain.Channel{
	domain.TierHot:  {domain.ChannelEmail, domain.ChannelSMS, domain.ChannelLinkedIn, domain.ChannelVoice, domain.ChannelMail},
	domain.TierWarm: {domain.ChannelEmail, domain.ChannelLinkedIn, domain.ChannelMail},
	domain.TierCool: {domain.ChannelEmail, domain.ChannelLinkedIn},
	domain.TierCold: {domain.ChannelEmail},
	domain.TierDead: {},
}

// AllowedChannels returns the channels unlocked by a tier. The returned
// slice is shared; callers must not mutate it.
func AllowedChannels(t domain.Tier) []domain.Channel {
	return tierChannels[t]
}

// ChannelAllowed reports whether a tier unlocks the given channel.
func ChannelAllowed(t domain.Tier, c domain.Channel) bool {
	for _, allowed := range tierChannels[t] {
		if allowed == c {
			return true
		}
	}
	return false
}
