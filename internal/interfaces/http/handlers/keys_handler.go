package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veridia/tokencore/internal/infrastructure/crypto"
	"github.com/veridia/tokencore/internal/infrastructure/monitoring"
	"github.com/veridia/tokencore/pkg/logger"
)

// KeysHandler exposes the signing key lifecycle to operators plus the public
// JWKS document to resource servers.
type KeysHandler struct {
	keys    *crypto.KeyManager
	metrics *monitoring.Metrics
	log     logger.Logger
}

// NewKeysHandler wires the handler.
func NewKeysHandler(keys *crypto.KeyManager, metrics *monitoring.Metrics, log logger.Logger) *KeysHandler {
	return &KeysHandler{keys: keys, metrics: metrics, log: log.WithComponent("keys_handler")}
}

type keyInfo struct {
	KID          string     `json:"kid"`
	Algorithm    string     `json:"algorithm"`
	Status       string     `json:"status"`
	Current      bool       `json:"current"`
	CreatedAt    time.Time  `json:"created_at"`
	DeactivateAt *time.Time `json:"deactivate_at,omitempty"`
}

type listKeysResponse struct {
	Keys        []keyInfo `json:"keys"`
	RotationDue bool      `json:"rotation_due"`
}

// List handles GET /v1/keys. Private material never appears here.
func (h *KeysHandler) List(c *gin.Context) {
	currentKID := h.keys.CurrentKID()
	held := h.keys.Keys()

	resp := listKeysResponse{
		Keys:        make([]keyInfo, 0, len(held)),
		RotationDue: h.keys.RotationDue(),
	}
	for _, key := range held {
		info := keyInfo{
			KID:       key.KID,
			Algorithm: key.Algorithm,
			Status:    string(key.Status()),
			Current:   key.KID == currentKID,
			CreatedAt: key.CreatedAt,
		}
		if !key.DeactivateAt.IsZero() {
			at := key.DeactivateAt
			info.DeactivateAt = &at
		}
		resp.Keys = append(resp.Keys, info)
	}
	c.JSON(http.StatusOK, resp)
}

type rotateResponse struct {
	KID string `json:"kid"`
}

// Rotate handles POST /v1/keys/rotate.
func (h *KeysHandler) Rotate(c *gin.Context) {
	kid, err := h.keys.Rotate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.metrics.KeyRotations.Inc()
	c.JSON(http.StatusCreated, rotateResponse{KID: kid})
}

// JWKS handles GET /.well-known/jwks.json.
func (h *KeysHandler) JWKS(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, h.keys.JWKS())
}
