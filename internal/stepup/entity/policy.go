package entity

import (
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

// Attribute keys the resolver understands, on users and on groups. Group
// attributes use the same keys minus the delivery addresses.
const (
	AttrDisabled = "otp-disabled"
	AttrChannel  = "otp-channel"
	AttrTimeout  = "otp-timeout"
	AttrLength   = "otp-length"
	AttrCharset  = "otp-charset"

	// AttrEmail is an alternate delivery address in addition to the
	// principal's primary address.
	AttrEmail = "otp-email"
	AttrPhone = "otp-phone"

	// AttrPrimaryEmail is the directory's regular mail attribute.
	AttrPrimaryEmail = "email"

	// TruthValue marks a boolean attribute as set.
	TruthValue = "true"
)

// ChallengeFieldName is the form field the gateway renders for the passcode
// prompt and reads the submitted code from.
const ChallengeFieldName = "otp-challenge-field"

// Principal is the identity being stepped up, with its directory attributes
// and group memberships as supplied by the host gateway's directory.
type Principal struct {
	ID         string
	Groups     []string
	Attributes map[string]string
}

// Attr returns the named attribute and whether it is non-empty.
func (p *Principal) Attr(key string) (string, bool) {
	if p == nil || p.Attributes == nil {
		return "", false
	}

	v, ok := p.Attributes[key]
	if !ok {
		return "", false
	}

	return v, v != ""
}

// Policy is the effective one-time-passcode policy for a single
// authentication attempt. It is computed on demand and never persisted.
type Policy struct {
	Channel  Channel
	Timeout  time.Duration
	Length   int
	Charset  otp.Charset
	Disabled bool
}

// DeliveryTarget is the resolved destination for one dispatch.
type DeliveryTarget struct {
	Channel Channel

	// Emails holds the primary and, when configured, alternate address.
	Emails []string

	// Phone is the SMS destination number.
	Phone string
}
