package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/internal/infrastructure/monitoring"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// TokenHandler exposes issuance, verification, and revocation.
type TokenHandler struct {
	tokens  service.TokenService
	metrics *monitoring.Metrics
	clk     clock.Clock
	log     logger.Logger
}

// NewTokenHandler wires the handler.
func NewTokenHandler(tokens service.TokenService, metrics *monitoring.Metrics, clk clock.Clock, log logger.Logger) *TokenHandler {
	return &TokenHandler{
		tokens:  tokens,
		metrics: metrics,
		clk:     clk,
		log:     log.WithComponent("token_handler"),
	}
}

type issueRequest struct {
	Subject   string `json:"subject" binding:"required"`
	TokenType string `json:"token_type" binding:"required"`
	// TTLSeconds is optional; leaving it out selects the configured default.
	TTLSeconds *int64                 `json:"ttl_seconds"`
	Roles      []string               `json:"roles"`
	Extra      map[string]interface{} `json:"extra"`
}

type issueResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	JTI       string    `json:"jti"`
	KID       string    `json:"kid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue handles POST /v1/tokens.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.ErrInvalidArgument("invalid request body: %v", err))
		return
	}

	var ttl *time.Duration
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds) * time.Second
		ttl = &d
	}
	issued, err := h.tokens.Issue(c.Request.Context(), service.IssueRequest{
		Subject:   req.Subject,
		TokenType: constants.TokenType(req.TokenType),
		TTL:       ttl,
		Roles:     req.Roles,
		Extra:     req.Extra,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.metrics.RecordIssued(req.TokenType)
	c.JSON(http.StatusCreated, issueResponse{
		Token:     issued.Token,
		TokenType: string(issued.Claims.TokenType),
		JTI:       issued.Claims.ID,
		KID:       issued.KID,
		ExpiresAt: issued.ExpiresAt,
	})
}

type verifyRequest struct {
	Token        string `json:"token" binding:"required"`
	ExpectedType string `json:"expected_type"`
}

type verifyResponse struct {
	Subject   string                 `json:"subject"`
	TokenType string                 `json:"token_type"`
	JTI       string                 `json:"jti"`
	Roles     []string               `json:"roles,omitempty"`
	ExpiresAt time.Time              `json:"expires_at"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Verify handles POST /v1/tokens/verify.
func (h *TokenHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.ErrInvalidArgument("invalid request body: %v", err))
		return
	}

	start := h.clk.Now()
	claims, err := h.tokens.Verify(c.Request.Context(), req.Token, service.VerifyOptions{
		ExpectedType: constants.TokenType(req.ExpectedType),
	})
	if err != nil {
		h.metrics.RecordVerification(apperrors.KindOf(err).String(), h.clk.Now().Sub(start))
		writeError(c, err)
		return
	}
	h.metrics.RecordVerification("ok", h.clk.Now().Sub(start))

	c.JSON(http.StatusOK, verifyResponse{
		Subject:   claims.Subject,
		TokenType: string(claims.TokenType),
		JTI:       claims.ID,
		Roles:     claims.Roles,
		ExpiresAt: claims.ExpiresAt.Time,
		Extra:     claims.Extra,
	})
}

type revokeRequest struct {
	Token  string `json:"token" binding:"required"`
	Reason string `json:"reason"`
}

// Revoke handles POST /v1/tokens/revoke.
func (h *TokenHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.ErrInvalidArgument("invalid request body: %v", err))
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), req.Token, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	h.metrics.RecordRevocation("single")
	c.Status(http.StatusNoContent)
}

// RevokeByJTI handles DELETE /v1/tokens/:jti.
func (h *TokenHandler) RevokeByJTI(c *gin.Context) {
	jti := c.Param("jti")
	reason := c.Query("reason")

	if err := h.tokens.RevokeByJTI(c.Request.Context(), jti, reason); err != nil {
		writeError(c, err)
		return
	}
	h.metrics.RecordRevocation("by_jti")
	c.Status(http.StatusNoContent)
}

type revokeSubjectResponse struct {
	Subject      string `json:"subject"`
	RevokedCount int64  `json:"revoked_count"`
}

// RevokeSubject handles DELETE /v1/subjects/:subject/tokens.
func (h *TokenHandler) RevokeSubject(c *gin.Context) {
	subject := c.Param("subject")
	reason := c.Query("reason")

	count, err := h.tokens.RevokeAllForSubject(c.Request.Context(), subject, reason)
	if err != nil {
		writeError(c, err)
		return
	}
	h.metrics.RecordRevocation("subject")
	c.JSON(http.StatusOK, revokeSubjectResponse{Subject: subject, RevokedCount: count})
}
