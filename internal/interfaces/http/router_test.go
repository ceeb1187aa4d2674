package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/internal/infrastructure/crypto"
	"github.com/veridia/tokencore/internal/infrastructure/monitoring"
	httpiface "github.com/veridia/tokencore/internal/interfaces/http"
	"github.com/veridia/tokencore/internal/interfaces/http/handlers"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/logger"
	"github.com/veridia/tokencore/tests/fakes"
)

// Prometheus collectors register globally, so the suite shares one set.
var testMetrics = monitoring.NewMetrics()

type routerHarness struct {
	clk    *clock.Fake
	keys   *crypto.KeyManager
	router http.Handler
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	noop := logger.NewNoop()

	store, err := crypto.NewFileKeyStore(t.TempDir(), noop)
	require.NoError(t, err)
	keys := crypto.NewKeyManager(store, crypto.KeyManagerConfig{}, clk, noop, nil)
	t.Cleanup(keys.Shutdown)
	require.NoError(t, keys.Initialize(ctx))

	codec := crypto.NewJWTManager(keys, crypto.JWTManagerConfig{
		Issuer:   "tokencore-test",
		Audience: "veridia-api",
	}, clk, noop)
	ledger := service.NewHybridRevocationLedger(
		fakes.NewMemoryRevocationRepository(), fakes.NewMemoryRevocationCache(clk), nil,
		service.HybridLedgerConfig{}, clk, noop)
	tokens := service.NewTokenService(codec, ledger, fakes.NewMemoryTokenRepository(),
		service.TokenServiceConfig{Issuer: "tokencore-test", Audience: "veridia-api"},
		clk, noop, logger.NewAuditLogger(noop))

	router := httpiface.NewRouter(config.ServerConfig{}, httpiface.RouterDeps{
		Tokens: handlers.NewTokenHandler(tokens, testMetrics, clk, noop),
		Keys:   handlers.NewKeysHandler(keys, testMetrics, noop),
		Health: handlers.NewHealthHandler(),
		Log:    noop,
	})
	return &routerHarness{clk: clk, keys: keys, router: router}
}

func (h *routerHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (h *routerHarness) issueToken(t *testing.T, subject, tokenType string) map[string]interface{} {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/v1/tokens", map[string]interface{}{
		"subject":    subject,
		"token_type": tokenType,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	decode(t, rec, &resp)
	return resp
}

func TestIssueVerifyRevokeOverHTTP(t *testing.T) {
	h := newRouterHarness(t)

	issued := h.issueToken(t, "creator-42", "access")
	token := issued["token"].(string)
	assert.NotEmpty(t, issued["jti"])
	assert.Equal(t, h.keys.CurrentKID(), issued["kid"])

	rec := h.do(t, http.MethodPost, "/v1/tokens/verify", map[string]interface{}{
		"token":         token,
		"expected_type": "access",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified map[string]interface{}
	decode(t, rec, &verified)
	assert.Equal(t, "creator-42", verified["subject"])

	rec = h.do(t, http.MethodPost, "/v1/tokens/revoke", map[string]interface{}{
		"token":  token,
		"reason": "logout",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/tokens/verify", map[string]interface{}{"token": token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var rejection struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &rejection)
	assert.Equal(t, "token_revoked", rejection.Error.Code)
}

func TestVerifyTypeMismatchOverHTTP(t *testing.T) {
	h := newRouterHarness(t)
	issued := h.issueToken(t, "creator-42", "refresh")

	rec := h.do(t, http.MethodPost, "/v1/tokens/verify", map[string]interface{}{
		"token":         issued["token"],
		"expected_type": "access",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "claims_invalid")
}

func TestIssueValidationOverHTTP(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/tokens", map[string]interface{}{
		"token_type": "access",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/tokens", map[string]interface{}{
		"subject":    "creator-42",
		"token_type": "session",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An explicit zero is a bad request; only omitting ttl_seconds selects
	// the default lifetime.
	rec = h.do(t, http.MethodPost, "/v1/tokens", map[string]interface{}{
		"subject":     "creator-42",
		"token_type":  "access",
		"ttl_seconds": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_argument")
}

func TestRevokeSubjectOverHTTP(t *testing.T) {
	h := newRouterHarness(t)
	first := h.issueToken(t, "creator-42", "refresh")
	second := h.issueToken(t, "creator-42", "refresh")

	rec := h.do(t, http.MethodDelete, "/v1/subjects/creator-42/tokens?reason=compromised", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, float64(2), resp["revoked_count"])

	for _, issued := range []map[string]interface{}{first, second} {
		rec := h.do(t, http.MethodPost, "/v1/tokens/verify", map[string]interface{}{
			"token": issued["token"],
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRevokeByJTIOverHTTP(t *testing.T) {
	h := newRouterHarness(t)
	issued := h.issueToken(t, "creator-42", "refresh")

	rec := h.do(t, http.MethodDelete, fmt.Sprintf("/v1/tokens/%s?reason=compromised", issued["jti"]), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/v1/tokens/never-issued", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeyEndpointsOverHTTP(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/keys/rotate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var rotated map[string]string
	decode(t, rec, &rotated)
	assert.NotEmpty(t, rotated["kid"])

	rec = h.do(t, http.MethodGet, "/v1/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Keys []struct {
			KID     string `json:"kid"`
			Status  string `json:"status"`
			Current bool   `json:"current"`
		} `json:"keys"`
	}
	decode(t, rec, &listed)
	require.Len(t, listed.Keys, 2)
	var currents int
	for _, k := range listed.Keys {
		if k.Current {
			currents++
			assert.Equal(t, rotated["kid"], k.KID)
		}
	}
	assert.Equal(t, 1, currents)

	rec = h.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jwks struct {
		Keys []map[string]string `json:"keys"`
	}
	decode(t, rec, &jwks)
	require.Len(t, jwks.Keys, 2)
	for _, jwk := range jwks.Keys {
		assert.Equal(t, "RSA", jwk["kty"])
		assert.Equal(t, "RS256", jwk["alg"])
		assert.NotEmpty(t, jwk["n"])
	}
}

func TestJWKSRevalidationOverHTTP(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	// An unchanged key set revalidates without a body.
	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	// Rotation changes the document and with it the validator.
	rotate := h.do(t, http.MethodPost, "/v1/keys/rotate", nil)
	require.Equal(t, http.StatusCreated, rotate.Code)

	req = httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestHealthEndpoints(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
