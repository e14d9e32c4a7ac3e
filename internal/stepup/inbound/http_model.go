package inbound

type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"s3cret"`
	// Passcode is sent on the second round trip; a null value means the
	// client has not been prompted yet.
	Passcode *string `json:"passcode" example:"493021"`
}

type LoginResponse struct {
	ChallengePending bool   `json:"challenge_pending"`
	FieldName        string `json:"field_name,omitempty" example:"otp-challenge-field"`
	Channel          string `json:"channel,omitempty" example:"email"`
	AccessToken      string `json:"access_token,omitempty"`
}

type VerifyRequest struct {
	Principal string `json:"principal" example:"alice"`
	// Response mirrors LoginRequest.Passcode: null means not prompted yet.
	Response *string `json:"response" example:"493021"`
}

type VerifyResponse struct {
	Status    string `json:"status" example:"needs_input"`
	FieldName string `json:"field_name,omitempty" example:"otp-challenge-field"`
	Channel   string `json:"channel,omitempty" example:"email"`
	Reason    string `json:"reason,omitempty"`
}

type AuthSuccessRequest struct {
	Principal string `json:"principal" example:"alice"`
	SessionID string `json:"session_id" example:"b2f7c0de"`
}

type InvalidateRequest struct {
	Principal string `json:"principal" example:"alice"`
}

type PolicyDetailResponse struct {
	Principal         string `json:"principal"`
	Disabled          bool   `json:"disabled"`
	Channel           string `json:"channel" example:"email"`
	TimeoutSeconds    int64  `json:"timeout_seconds" example:"300"`
	Length            int    `json:"length" example:"6"`
	Charset           string `json:"charset" example:"numeric"`
	HasDeliveryTarget bool   `json:"has_delivery_target"`
}
