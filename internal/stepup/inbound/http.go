package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/stepup/usecase"
)

type uc interface {
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginOutput, error)
	VerifyUser(ctx context.Context, in usecase.VerifyUserInput) (*usecase.VerifyUserOutput, error)
	OnAuthenticationSuccess(ctx context.Context, in usecase.AuthSuccessInput) error

	InvalidatePrincipal(ctx context.Context, in usecase.InvalidatePrincipalInput) error
	PolicyDetail(ctx context.Context, in usecase.PolicyDetailInput) (*usecase.PolicyDetailOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Login conversation (both round trips of a challenged login)
	r.POST("/api/v1/stepup/login", end.Login)

	// Host gateway hooks
	r.POST("/api/v1/stepup/verify", end.Verify)
	r.POST("/api/v1/stepup/auth-success", end.AuthSuccess)

	// Operator surface (need authenticated & authorization)
	r.POST("/api/v1/stepup/admin/invalidate", end.Invalidate)
	r.GET("/api/v1/stepup/admin/policy/:principal", end.PolicyDetail)
}
