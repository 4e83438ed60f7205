package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucasberan/keygate/internal/audit"
	"github.com/lucasberan/keygate/internal/auth"
	"github.com/lucasberan/keygate/internal/twofactor"
	"github.com/lucasberan/keygate/pkg/metrics"
	"github.com/lucasberan/keygate/pkg/response"
)

// AuthHandler manages the login flow, including the two-factor challenge leg.
type AuthHandler struct {
	authenticator *auth.PasswordAuthenticator
	tokens        *auth.TokenService
	twoFactor     *twofactor.Service
	challenges    *twofactor.Coordinator
	audits        *audit.Service
}

func NewAuthHandler(
	authenticator *auth.PasswordAuthenticator,
	tokens *auth.TokenService,
	twoFactor *twofactor.Service,
	challenges *twofactor.Coordinator,
	audits *audit.Service,
) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		tokens:        tokens,
		twoFactor:     twoFactor,
		challenges:    challenges,
		audits:        audits,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.authenticator.Register(auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.recordAudit(c, "", audit.ActionRegister, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	details, err := h.tokens.Issue(user, false)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.recordAudit(c, user.ID, audit.ActionRegister, audit.ResultSuccess, nil)
	response.Success(c, http.StatusCreated, tokenPayload(details))
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Remember   bool   `json:"remember"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.authenticator.Authenticate(auth.Credentials{
		Identifier: req.Identifier,
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.recordAudit(c, "", audit.ActionLogin, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	state, err := h.twoFactor.State(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Only a confirmed enrollment interposes the challenge; pending
	// enrollments still log in with the password alone.
	if state == twofactor.StateConfirmed {
		token, err := h.challenges.Begin(user.ID, req.Remember)
		if err != nil {
			response.Error(c, err)
			return
		}

		metrics.LoginAttempts.WithLabelValues("two_factor").Inc()
		h.recordAudit(c, user.ID, audit.ActionLogin, audit.ResultSuccess, map[string]any{
			"two_factor": true,
		})
		response.Success(c, http.StatusOK, gin.H{
			"two_factor":      true,
			"challenge_token": token,
		})
		return
	}

	details, err := h.tokens.Issue(user, req.Remember)
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.recordAudit(c, user.ID, audit.ActionLogin, audit.ResultSuccess, nil)
	response.Success(c, http.StatusOK, tokenPayload(details))
}

type challengeRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code"`
	RecoveryCode   string `json:"recovery_code"`
}

// POST /api/auth/two-factor-challenge
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req challengeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	method := "totp"
	if req.RecoveryCode != "" {
		method = "recovery_code"
	}

	outcome, err := h.challenges.Verify(req.ChallengeToken, req.Code, req.RecoveryCode)
	if err != nil {
		metrics.ChallengeAttempts.WithLabelValues(method, "failure").Inc()
		h.recordAudit(c, "", audit.ActionChallenge, audit.ResultFailure, map[string]any{
			"method": method,
		})
		response.Error(c, err)
		return
	}

	user, err := h.authenticator.UserByID(outcome.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	details, err := h.tokens.Issue(user, outcome.Remember)
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.ChallengeAttempts.WithLabelValues(method, "success").Inc()
	h.recordAudit(c, user.ID, audit.ActionChallenge, audit.ResultSuccess, map[string]any{
		"method": method,
	})
	if outcome.UsedRecoveryCode {
		h.recordAudit(c, user.ID, audit.ActionRecoveryCodeLogin, audit.ResultSuccess, nil)
	}

	response.Success(c, http.StatusOK, tokenPayload(details))
}

// POST /api/auth/logout
//
// Access tokens are stateless, so logout is a no-content acknowledgement; the
// client discards its stored token and expiry bounds any copy that leaks.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.recordAudit(c, currentUserID(c), audit.ActionLogout, audit.ResultSuccess, nil)
	c.Status(http.StatusNoContent)
}

func tokenPayload(details *auth.TokenDetails) gin.H {
	return gin.H{
		"token_type":   details.TokenType,
		"access_token": details.AccessToken,
		"expires_in":   details.ExpiresIn,
		"user":         details.User,
	}
}

func (h *AuthHandler) recordAudit(c *gin.Context, userID, action, result string, metadata map[string]any) {
	if h.audits == nil {
		return
	}

	_ = h.audits.Record(requestContext(c), audit.Entry{
		UserID:    userID,
		Action:    action,
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Metadata:  metadata,
	})
}
