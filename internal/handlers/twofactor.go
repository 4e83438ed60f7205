package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucasberan/keygate/internal/audit"
	"github.com/lucasberan/keygate/internal/auth"
	"github.com/lucasberan/keygate/internal/twofactor"
	"github.com/lucasberan/keygate/pkg/metrics"
	"github.com/lucasberan/keygate/pkg/response"
)

// StepUpTokenHeader carries the capability minted by password confirmation.
const StepUpTokenHeader = "X-Step-Up-Token"

// TwoFactorHandler manages two-factor enrollment and the related account
// security endpoints.
type TwoFactorHandler struct {
	authenticator *auth.PasswordAuthenticator
	gate          *auth.StepUpGate
	twoFactor     *twofactor.Service
	audits        *audit.Service
}

func NewTwoFactorHandler(
	authenticator *auth.PasswordAuthenticator,
	gate *auth.StepUpGate,
	twoFactor *twofactor.Service,
	audits *audit.Service,
) *TwoFactorHandler {
	return &TwoFactorHandler{
		authenticator: authenticator,
		gate:          gate,
		twoFactor:     twoFactor,
		audits:        audits,
	}
}

type confirmPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// POST /api/user/confirm-password
func (h *TwoFactorHandler) ConfirmPassword(c *gin.Context) {
	var req confirmPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID := currentUserID(c)
	if err := h.authenticator.VerifyPassword(userID, req.Password); err != nil {
		h.recordAudit(c, userID, audit.ActionConfirmPassword, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	token, err := h.gate.Confirm(userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.recordAudit(c, userID, audit.ActionConfirmPassword, audit.ResultSuccess, nil)
	response.Success(c, http.StatusCreated, gin.H{"step_up_token": token})
}

// POST /api/user/two-factor-authentication
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	userID := currentUserID(c)

	user, err := h.authenticator.UserByID(userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	enrollment, err := h.twoFactor.Enable(userID, user.Email, c.GetHeader(StepUpTokenHeader))
	if err != nil {
		h.recordAudit(c, userID, audit.ActionTwoFactorEnable, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	metrics.TwoFactorChanges.WithLabelValues("enable").Inc()
	h.recordAudit(c, userID, audit.ActionTwoFactorEnable, audit.ResultSuccess, nil)
	response.Success(c, http.StatusOK, enrollment)
}

// DELETE /api/user/two-factor-authentication
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	userID := currentUserID(c)

	if err := h.twoFactor.Disable(userID, c.GetHeader(StepUpTokenHeader)); err != nil {
		h.recordAudit(c, userID, audit.ActionTwoFactorDisable, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	metrics.TwoFactorChanges.WithLabelValues("disable").Inc()
	h.recordAudit(c, userID, audit.ActionTwoFactorDisable, audit.ResultSuccess, nil)
	response.Success(c, http.StatusOK, gin.H{"disabled": true})
}

type confirmTwoFactorRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/user/confirmed-two-factor-authentication
func (h *TwoFactorHandler) Confirm(c *gin.Context) {
	var req confirmTwoFactorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID := currentUserID(c)
	if err := h.twoFactor.Confirm(userID, req.Code, c.GetHeader(StepUpTokenHeader)); err != nil {
		h.recordAudit(c, userID, audit.ActionTwoFactorConfirm, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	metrics.TwoFactorChanges.WithLabelValues("confirm").Inc()
	h.recordAudit(c, userID, audit.ActionTwoFactorConfirm, audit.ResultSuccess, nil)
	response.Success(c, http.StatusOK, gin.H{"confirmed": true})
}

// GET /api/user/two-factor-qr-code
func (h *TwoFactorHandler) QRCode(c *gin.Context) {
	userID := currentUserID(c)

	user, err := h.authenticator.UserByID(userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	qr, err := h.twoFactor.ProvisioningQRCode(userID, user.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if qr == nil {
		// Not enabled: an empty payload rather than an error.
		response.Success(c, http.StatusOK, nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"png": base64.StdEncoding.EncodeToString(qr.PNG),
		"url": qr.URL,
	})
}

// GET /api/user/two-factor-secret-key
func (h *TwoFactorHandler) SecretKey(c *gin.Context) {
	secret, err := h.twoFactor.SecretKey(currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if secret == "" {
		response.Success(c, http.StatusOK, nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"secret_key": secret})
}

// GET /api/user/two-factor-recovery-codes
func (h *TwoFactorHandler) RecoveryCodes(c *gin.Context) {
	codes, err := h.twoFactor.RecoveryCodes(currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if codes == nil {
		response.Success(c, http.StatusOK, nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"recovery_codes": codes})
}

// POST /api/user/two-factor-recovery-codes
func (h *TwoFactorHandler) RegenerateRecoveryCodes(c *gin.Context) {
	userID := currentUserID(c)

	codes, err := h.twoFactor.RegenerateRecoveryCodes(userID, c.GetHeader(StepUpTokenHeader))
	if err != nil {
		h.recordAudit(c, userID, audit.ActionRecoveryRegen, audit.ResultFailure, nil)
		response.Error(c, err)
		return
	}

	metrics.TwoFactorChanges.WithLabelValues("regenerate_recovery_codes").Inc()
	h.recordAudit(c, userID, audit.ActionRecoveryRegen, audit.ResultSuccess, nil)
	response.Success(c, http.StatusOK, gin.H{"recovery_codes": codes})
}

func (h *TwoFactorHandler) recordAudit(c *gin.Context, userID, action, result string, metadata map[string]any) {
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
