package entity

import "strings"

type Channel int16

const (
	ChannelUnknown Channel = 0

	// ChannelEmail delivers the passcode to the principal's mail addresses.
	ChannelEmail Channel = 1

	// ChannelSMS delivers the passcode to the principal's phone number.
	// Declared for configuration compatibility; dispatch is not implemented.
	ChannelSMS Channel = 2
)

func ChannelFromString(str string) Channel {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "EMAIL":
		return ChannelEmail
	case "SMS":
		return ChannelSMS
	default:
		return ChannelUnknown
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "EMAIL"
	case ChannelSMS:
		return "SMS"
	default:
		return "UNKNOWN"
	}
}

type MissingAction int16

const (
	MissingActionUnknown MissingAction = 0

	// MissingActionBlock rejects the login when delivery data is absent.
	MissingActionBlock MissingAction = 1

	// MissingActionAllow lets the login through unchallenged when delivery
	// data is absent.
	MissingActionAllow MissingAction = 2
)

func MissingActionFromString(str string) MissingAction {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "BLOCK":
		return MissingActionBlock
	case "ALLOW":
		return MissingActionAllow
	default:
		return MissingActionUnknown
	}
}

func (ma MissingAction) String() string {
	switch ma {
	case MissingActionBlock:
		return "BLOCK"
	case MissingActionAllow:
		return "ALLOW"
	default:
		return "UNKNOWN"
	}
}

// VerifyStatus is the tagged outcome of a verification attempt.
type VerifyStatus int16

const (
	VerifyStatusUnknown VerifyStatus = 0

	// VerifyStatusVerified means the step-up requirement is satisfied.
	VerifyStatusVerified VerifyStatus = 1

	// VerifyStatusNeedsInput means a challenge was issued and the caller must
	// re-submit with the secret field filled in. This is control flow, not a
	// fault.
	VerifyStatusNeedsInput VerifyStatus = 2

	// VerifyStatusRejected means the attempt was refused; the reason says
	// whether it is retryable.
	VerifyStatusRejected VerifyStatus = 3
)

func (vs VerifyStatus) String() string {
	switch vs {
	case VerifyStatusVerified:
		return "Verified"
	case VerifyStatusNeedsInput:
		return "NeedsInput"
	case VerifyStatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}
