package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/pkpauth/core"
)

// AuthService is the subset of service.AuthService the handlers call
type AuthService interface {
	AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error)
	FetchPKPs(ctx context.Context, m core.AuthMethod) ([]core.PKP, error)
	MintPKP(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error)
	SessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error)
	ValidateSessionSigs(sigs core.SessionSigs) core.ValidationResult
}

// AuthHandlers contains HTTP handlers for the auth endpoints
type AuthHandlers struct {
	authService AuthService
	logger      zerolog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService AuthService, logger zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

type authMethodRequest struct {
	AuthMethod *core.AuthMethod `json:"authMethod" binding:"required"`
}

// AuthMethodID derives the relay identifier of an auth method
func (h *AuthHandlers) AuthMethodID(c *gin.Context) {
	var req authMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	id, err := h.authService.AuthMethodID(c.Request.Context(), *req.AuthMethod)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"authMethodId": id})
}

// FetchPKPs lists the PKPs bound to an auth method
func (h *AuthHandlers) FetchPKPs(c *gin.Context) {
	var req authMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pkps, err := h.authService.FetchPKPs(c.Request.Context(), *req.AuthMethod)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pkps": pkps})
}

type mintRequest struct {
	AuthMethods                        []core.AuthMethod        `json:"authMethods" binding:"required"`
	Scopes                             [][]core.AuthMethodScope `json:"scopes"`
	AddPKPEthAddressAsPermittedAddress *bool                    `json:"addPkpEthAddressAsPermittedAddress"`
	SendPKPToItself                    *bool                    `json:"sendPkpToItself"`
}

// MintPKP mints a PKP bound to the given auth methods and waits for it
func (h *AuthHandlers) MintPKP(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pkp, err := h.authService.MintPKP(c.Request.Context(), req.AuthMethods, core.MintOptions{
		Scopes:                             req.Scopes,
		AddPKPEthAddressAsPermittedAddress: req.AddPKPEthAddressAsPermittedAddress,
		SendPKPToItself:                    req.SendPKPToItself,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pkp": pkp})
}

// SessionSigs derives session signatures for a PKP
func (h *AuthHandlers) SessionSigs(c *gin.Context) {
	var params core.SessionSigsParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sigs, err := h.authService.SessionSigs(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionSigs": sigs})
}

// ValidateSessionSigs checks session signatures without contacting any node
func (h *AuthHandlers) ValidateSessionSigs(c *gin.Context) {
	var req struct {
		SessionSigs core.SessionSigs `json:"sessionSigs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	c.JSON(http.StatusOK, h.authService.ValidateSessionSigs(req.SessionSigs))
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var validation *core.ValidationError
	if errors.As(err, &validation) {
		body["errors"] = validation.Errors
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, body)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrNoAuthMethods),
		errors.Is(err, core.ErrUnsupportedAuthMethod),
		errors.Is(err, core.ErrMissingAuthSig):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAuthentication),
		errors.Is(err, core.ErrAddressMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPollTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrRelay),
		errors.Is(err, core.ErrNode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
