package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasberan/keygate/internal/audit"
	"github.com/lucasberan/keygate/internal/auth"
	"github.com/lucasberan/keygate/internal/handlers"
	"github.com/lucasberan/keygate/internal/middleware"
	"github.com/lucasberan/keygate/internal/twofactor"
)

// Dependencies bundles the services the router needs.
type Dependencies struct {
	Authenticator *auth.PasswordAuthenticator
	Tokens        *auth.TokenService
	StepUpGate    *auth.StepUpGate
	TwoFactor     *twofactor.Service
	Challenges    *twofactor.Coordinator
	Audits        *audit.Service

	// AuthRateLimit bounds requests per IP+path on the public auth routes.
	// Zero disables limiting, which tests rely on.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("authenticator must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.StepUpGate == nil {
		return nil, fmt.Errorf("step-up gate must be provided")
	}
	if deps.TwoFactor == nil {
		return nil, fmt.Errorf("two-factor service must be provided")
	}
	if deps.Challenges == nil {
		return nil, fmt.Errorf("challenge coordinator must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(middleware.NotFoundHandler)

	authHandler := handlers.NewAuthHandler(
		deps.Authenticator, deps.Tokens, deps.TwoFactor, deps.Challenges, deps.Audits)
	twoFactorHandler := handlers.NewTwoFactorHandler(
		deps.Authenticator, deps.StepUpGate, deps.TwoFactor, deps.Audits)

	// Public auth routes take the brunt of credential stuffing, so they get
	// their own rate limit.
	authGroup := r.Group("/api/auth")
	authGroup.Use(middleware.RateLimit(deps.AuthRateLimit, deps.AuthRateWindow))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/two-factor-challenge", authHandler.Challenge)
	}

	// Logout shares the /api/auth prefix but requires a valid bearer token.
	authSession := r.Group("/api/auth")
	authSession.Use(middleware.Auth(deps.Tokens))
	{
		authSession.POST("/logout", authHandler.Logout)
	}

	// Account security routes require an authenticated bearer token.
	user := r.Group("/api/user")
	user.Use(middleware.Auth(deps.Tokens))
	{
		user.POST("/confirm-password", twoFactorHandler.ConfirmPassword)

		user.POST("/two-factor-authentication", twoFactorHandler.Enable)
		user.DELETE("/two-factor-authentication", twoFactorHandler.Disable)
		user.POST("/confirmed-two-factor-authentication", twoFactorHandler.Confirm)

		user.GET("/two-factor-qr-code", twoFactorHandler.QRCode)
		user.GET("/two-factor-secret-key", twoFactorHandler.SecretKey)
		user.GET("/two-factor-recovery-codes", twoFactorHandler.RecoveryCodes)
		user.POST("/two-factor-recovery-codes", twoFactorHandler.RegenerateRecoveryCodes)
	}

	return r, nil
}
