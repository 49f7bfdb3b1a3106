package scoring

import (
	"testing"

	"github.com/agencyos/leadpool/internal/domain"
)

func TestTierForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  domain.Tier
	}{
		{100, domain.TierHot},
		{85, domain.TierHot},
		{84, domain.TierWarm},
		{60, domain.TierWarm},
		{59, domain.TierCool},
		{35, domain.TierCool},
		{34, domain.TierCold},
		{20, domain.TierCold},
		{19, domain.TierDead},
		{0, domain.TierDead},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.want {
			t.Errorf("TierForScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestTierForScoreClampsOutOfRange(t *testing.T) {
	if got := TierForScore(-10); got != domain.TierDead {
		t.Errorf("TierForScore(-10) = %s, want dead", got)
	}
	if got := TierForScore(250); got != domain.TierHot {
		t.Errorf("TierForScore(250) = %s, want hot", got)
	}
}

// Every score in [0, 100] must land in exactly one tier.
func TestTierTableCoversFullRange(t *testing.T) {
	for score := 0; score <= 100; score++ {
		matches := 0
		tier := TierForScore(score)
		for _, candidate := range []domain.Tier{domain.TierHot, domain.TierWarm, domain.TierCool, domain.TierCold, domain.TierDead} {
			if candidate == tier {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("score %d matched %d tiers", score, matches)
		}
	}
}

// Channel sets must be nested: a higher tier never loses a channel the
// tier below it has.
func TestTierChannelsAreNested(t *testing.T) {
	order := []domain.Tier{domain.TierDead, domain.TierCold, domain.TierCool, domain.TierWarm, domain.TierHot}
	for i := 1; i < len(order); i++ {
		lower, higher := order[i-1], order[i]
		for _, ch := range AllowedChannels(lower) {
			if !ChannelAllowed(higher, ch) {
				t.Errorf("tier %s allows %s but higher tier %s does not", lower, ch, higher)
			}
		}
	}
}

func TestChannelAllowed(t *testing.T) {
	if !ChannelAllowed(domain.TierHot, domain.ChannelVoice) {
		t.Error("hot tier should unlock voice")
	}
	if ChannelAllowed(domain.TierCool, domain.ChannelSMS) {
		t.Error("cool tier should not unlock sms")
	}
	if ChannelAllowed(domain.TierDead, domain.ChannelEmail) {
		t.Error("dead tier should not unlock any channel")
	}
	if ChannelAllowed(domain.TierCold, domain.ChannelLinkedIn) {
		t.Error("cold tier should only unlock email")
	}
}
