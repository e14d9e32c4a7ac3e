package event

const AuthSuccessDestination string = "auth_success"
const AuthSuccessConsumerStepup string = "auth_success_stepup"

// AuthSuccessMessage is emitted by the gateway once a principal holds a fully
// authenticated session. Step-up consumes it to drop any leftover passcode.
type AuthSuccessMessage struct {
	Principal  string `json:"principal"`
	SessionID  string `json:"session_id"`
	OccurredAt int64  `json:"occurred_at"`
}
