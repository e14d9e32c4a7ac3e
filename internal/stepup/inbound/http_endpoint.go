package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/stepup/usecase"
)

// HTTPEndpoint exposes HTTP handlers for the step-up challenge workflows.
type HTTPEndpoint struct {
	uc uc
}

// Login runs primary authentication plus the step-up conversation.
// @Summary Authenticate user with step-up
// @Description Validates credentials. When policy requires a one-time passcode, returns a challenge; resubmit with the passcode to obtain an access token.
// @Tags Stepup, Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} router.successResponse{data=LoginResponse} "Authentication result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid credentials or passcode"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/stepup/login [post]
func (h *HTTPEndpoint) Login(r *router.Request) (any, error) {
	var req LoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	in := usecase.LoginInput{
		Username: req.Username,
		Password: req.Password,
	}
	if req.Passcode != nil {
		in.Passcode = *req.Passcode
		in.PasscodeSubmitted = true
	}

	resp, err := h.uc.Login(r.Context(), in)
	if err != nil {
		return nil, err
	}

	return LoginResponse{
		ChallengePending: resp.ChallengePending,
		FieldName:        resp.FieldName,
		Channel:          resp.Channel,
		AccessToken:      resp.AccessToken,
	}, nil
}

// Verify drives one turn of the challenge for an already-authenticated principal.
// @Summary Verify step-up challenge
// @Description Issues a challenge when no response is supplied, or checks the supplied passcode. Intended for the host gateway.
// @Tags Stepup
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyResponse} "Verification state"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unknown principal"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/stepup/verify [post]
func (h *HTTPEndpoint) Verify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	in := usecase.VerifyUserInput{Principal: req.Principal}
	if req.Response != nil {
		in.Response = *req.Response
		in.Submitted = true
	}

	resp, err := h.uc.VerifyUser(r.Context(), in)
	if err != nil {
		return nil, err
	}

	return VerifyResponse{
		Status:    resp.Status.String(),
		FieldName: resp.FieldName,
		Channel:   resp.Channel.String(),
		Reason:    resp.Reason,
	}, nil
}

// AuthSuccess invalidates any outstanding passcode after session issuance.
// @Summary Report authenticated session
// @Description Drops any outstanding passcode for the principal so it cannot be replayed.
// @Tags Stepup
// @Accept json
// @Produce json
// @Param request body AuthSuccessRequest true "Session payload"
// @Success 200 {object} router.successResponse "Acknowledged"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Router /api/v1/stepup/auth-success [post]
func (h *HTTPEndpoint) AuthSuccess(r *router.Request) (any, error) {
	var req AuthSuccessRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.OnAuthenticationSuccess(r.Context(), usecase.AuthSuccessInput{
		Principal: req.Principal,
		SessionID: req.SessionID,
	}); err != nil {
		return nil, err
	}

	return nil, nil
}

// Invalidate discards a principal's outstanding passcode.
// @Summary Invalidate outstanding passcode
// @Description Operator action: discards any outstanding passcode so the next login starts fresh.
// @Tags Stepup, Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InvalidateRequest true "Invalidate payload"
// @Success 200 {object} router.successResponse "Acknowledged"
// @Failure 401 {object} router.errorResponse "Authentication required"
// @Failure 403 {object} router.errorResponse "Not allowed"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Router /api/v1/stepup/admin/invalidate [post]
func (h *HTTPEndpoint) Invalidate(r *router.Request) (any, error) {
	var req InvalidateRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.InvalidatePrincipal(r.Context(), usecase.InvalidatePrincipalInput{
		Principal: req.Principal,
	}); err != nil {
		return nil, err
	}

	return nil, nil
}

// PolicyDetail returns the effective policy for a principal.
// @Summary Inspect effective policy
// @Description Operator action: shows the resolved challenge policy for one principal, after precedence between user, group, and system defaults.
// @Tags Stepup, Admin
// @Produce json
// @Security BearerAuth
// @Param principal path string true "Principal username"
// @Success 200 {object} router.successResponse{data=PolicyDetailResponse} "Effective policy"
// @Failure 401 {object} router.errorResponse "Authentication required"
// @Failure 403 {object} router.errorResponse "Not allowed"
// @Failure 404 {object} router.errorResponse "Principal not found"
// @Router /api/v1/stepup/admin/policy/{principal} [get]
func (h *HTTPEndpoint) PolicyDetail(r *router.Request) (any, error) {
	resp, err := h.uc.PolicyDetail(r.Context(), usecase.PolicyDetailInput{
		Principal: r.GetParam("principal"),
	})
	if err != nil {
		return nil, err
	}

	return PolicyDetailResponse{
		Principal:         resp.Principal,
		Disabled:          resp.Disabled,
		Channel:           resp.Channel.String(),
		TimeoutSeconds:    int64(resp.Timeout.Seconds()),
		Length:            resp.Length,
		Charset:           resp.Charset.String(),
		HasDeliveryTarget: resp.HasDeliveryTarget,
	}, nil
}
