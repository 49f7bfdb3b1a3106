package domain

// Channel enumerates the outreach channels a lead can be contacted through.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelLinkedIn Channel = "linkedin"
	ChannelVoice    Channel = "voice"
	ChannelMail     Channel = "mail"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelLinkedIn, ChannelVoice, ChannelMail}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelLinkedIn, ChannelVoice, ChannelMail:
		return true
	}
	return false
}

// ResourceKind enumerates the sending resources consumed per channel.
// Email sends burn a sending domain, SMS and voice burn a phone number,
// LinkedIn touches burn a seat.
type ResourceKind string

const (
	ResourceDomain ResourceKind = "domain"
	ResourceNumber ResourceKind = "number"
	ResourceSeat   ResourceKind = "seat"
)

// ResourceKindForChannel maps a channel to the resource kind it consumes.
func ResourceKindForChannel(c Channel) ResourceKind {
	switch c {
	case ChannelEmail, ChannelMail:
		return ResourceDomain
	case ChannelSMS, ChannelVoice:
		return ResourceNumber
	case ChannelLinkedIn:
		return ResourceSeat
	}
	return ResourceDomain
}
