package jit

// Reason is the machine-readable code for a failed pre-send check.
type Reason string

const (
	ReasonGloballyBounced           Reason = "GloballyBounced"
	ReasonGloballyUnsubscribed      Reason = "GloballyUnsubscribed"
	ReasonUnverifiedEmail           Reason = "UnverifiedEmail"
	ReasonNotAssignedToTenant       Reason = "NotAssignedToTenant"
	ReasonAlreadyReplied            Reason = "AlreadyReplied"
	ReasonAlreadyConverted          Reason = "AlreadyConverted"
	ReasonTooSoonSinceLastContact   Reason = "TooSoonSinceLastContact"
	ReasonChannelOnCooldown         Reason = "ChannelOnCooldown"
	ReasonChannelNotEligibleForTier Reason = "ChannelNotEligibleForTier"
	ReasonResourceRateLimitExceeded Reason = "ResourceRateLimitExceeded"
	ReasonResourceNotReady          Reason = "ResourceNotReady"
)

// Result is the outcome of a pre-send check. A failed Result means "do
// not send; try later or escalate" — it is business-as-usual, never an
// error to retry blindly.
type Result struct {
	OK      bool   `json:"ok"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pass returns a passing result.
func Pass() Result {
	return Result{OK: true}
}

// Fail returns a failing result with a typed reason and human message.
func Fail(reason Reason, message string) Result {
	return Result{Reason: reason, Message: message}
}
