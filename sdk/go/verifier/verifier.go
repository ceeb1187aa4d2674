// Package verifier is a lightweight client for resource servers that want to
// verify tokencore-issued tokens offline. It fetches the JWKS document, pins
// the RS256 algorithm, and validates standard claims locally; revocation is
// deliberately out of scope because only the issuing service owns the ledger.
package verifier

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnknownKey means the token's key identifier is absent from the JWKS
	// even after a refresh.
	ErrUnknownKey = errors.New("verifier: signing key not found in jwks")

	// ErrUnsupportedAlgorithm means the token header names an algorithm
	// other than RS256.
	ErrUnsupportedAlgorithm = errors.New("verifier: unsupported token algorithm")

	// ErrNoKeys means the JWKS document carried no usable RSA keys.
	ErrNoKeys = errors.New("verifier: jwks contains no usable keys")
)

const signingAlgorithm = "RS256"

// Claims is the claim set of a tokencore token as seen by resource servers.
type Claims struct {
	jwt.RegisteredClaims

	TokenType string                 `json:"typ"`
	Roles     []string               `json:"roles,omitempty"`
	Version   int                    `json:"ver"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Config configures a Verifier.
type Config struct {
	// JWKSURL is the issuer's JWKS endpoint.
	JWKSURL string

	// Issuer and Audience must match the token claims exactly.
	Issuer   string
	Audience string

	// Leeway loosens time-based checks for skewed clocks. Zero is exact.
	Leeway time.Duration

	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client
}

// Verifier validates tokens against a cached JWKS document. Safe for
// concurrent use; an unknown key identifier triggers one refresh before the
// token is rejected, which is how rotations propagate.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser

	mu       sync.RWMutex
	keys     map[string]*rsa.PublicKey
	lastETag string
}

// New creates a Verifier. Call Refresh once at startup or let the first
// verification trigger the initial fetch.
func New(cfg Config) *Verifier {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithExpirationRequired(),
		),
		keys: make(map[string]*rsa.PublicKey),
	}
}

// Refresh fetches the JWKS document, honoring ETag caching.
func (v *Verifier) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return err
	}
	v.mu.RLock()
	if v.lastETag != "" {
		req.Header.Set("If-None-Match", v.lastETag)
	}
	v.mu.RUnlock()

	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verifier: jwks fetch returned %s", resp.Status)
	}

	var jwks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("verifier: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if pub, ok := key.Key.(*rsa.PublicKey); ok && key.KeyID != "" {
			keys[key.KeyID] = pub
		}
	}
	if len(keys) == 0 {
		return ErrNoKeys
	}

	v.mu.Lock()
	v.keys = keys
	v.lastETag = resp.Header.Get("ETag")
	v.mu.Unlock()
	return nil
}

// Verify validates a token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != signingAlgorithm {
			return nil, ErrUnsupportedAlgorithm
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKey
		}
		return v.lookupKey(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// lookupKey resolves a key identifier, refreshing once on a miss so freshly
// rotated keys are found without restarting the resource server.
func (v *Verifier) lookupKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}
