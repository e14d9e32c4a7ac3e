package event

const OTPChallengeIssuedDestination string = "otp_challenge_issued"
const OTPChallengeResolvedDestination string = "otp_challenge_resolved"

// OTPChallengeIssuedMessage announces that a passcode was generated and
// handed to delivery. It never carries the code itself.
type OTPChallengeIssuedMessage struct {
	ChallengeID int64  `json:"challenge_id,string"`
	Principal   string `json:"principal"`
	Channel     string `json:"channel"`
	ExpiresAt   int64  `json:"expires_at"`
}

// OTPChallengeResolvedMessage announces the terminal outcome of a challenge:
// verified, rejected, or invalidated.
type OTPChallengeResolvedMessage struct {
	Principal string `json:"principal"`
	Outcome   string `json:"outcome"`
}
