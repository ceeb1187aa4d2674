package crypto

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// JWTManagerConfig carries the issuer identity baked into every token.
type JWTManagerConfig struct {
	Issuer   string
	Audience string

	// Leeway loosens time-based claim checks for deployments with skewed
	// clocks. Zero keeps the expiry boundary exact.
	Leeway time.Duration
}

// JWTManager signs and verifies tokens against the key manager. The
// verification side enforces a fixed order: algorithm pin, key resolution,
// signature, then standard claims. Revocation is layered on top by the token
// service; this type never consults the ledger.
type JWTManager struct {
	keys   *KeyManager
	cfg    JWTManagerConfig
	parser *jwt.Parser
	log    logger.Logger
}

// NewJWTManager wires the codec to a key manager and a clock.
func NewJWTManager(keys *KeyManager, cfg JWTManagerConfig, clk clock.Clock, log logger.Logger) *JWTManager {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(clk.Now),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	)
	return &JWTManager{
		keys:   keys,
		cfg:    cfg,
		parser: parser,
		log:    log.WithComponent("jwt_manager"),
	}
}

// SignClaims signs the claim set with the current key and returns the
// compact token plus the key identifier stamped in its header.
func (m *JWTManager) SignClaims(ctx context.Context, claims *models.Claims) (string, string, error) {
	kid, private, err := m.keys.CurrentSigningKey()
	if err != nil {
		return "", "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(private)
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.KindUnknown, "sign token")
	}
	return signed, kid, nil
}

// ParseAndVerify decodes and verifies a compact token. Every rejection is a
// kind-tagged error from the taxonomy; the caller decides how to surface it.
func (m *JWTManager) ParseAndVerify(ctx context.Context, tokenString string) (*models.Claims, error) {
	if tokenString == "" {
		return nil, apperrors.ErrMalformedToken(stderrors.New("empty token"))
	}

	claims := &models.Claims{}
	if _, err := m.parser.ParseWithClaims(tokenString, claims, m.keyfunc); err != nil {
		return nil, m.mapParseError(err)
	}

	// Structural claim checks beyond what the parser covers.
	if claims.ID == "" {
		return nil, apperrors.ErrClaimsInvalid("missing jti claim")
	}
	if claims.Subject == "" {
		return nil, apperrors.ErrClaimsInvalid("missing sub claim")
	}
	if !claims.TokenType.Valid() {
		return nil, apperrors.ErrClaimsInvalid("unknown token type")
	}
	if claims.Version != constants.ClaimsVersion {
		return nil, apperrors.ErrClaimsInvalid("unsupported claims version")
	}
	return claims, nil
}

// keyfunc pins the algorithm before any key lookup. The algorithm comes from
// the verifier's own configuration, never from the token header, so "none"
// and cross-algorithm headers die here before a signature check is even
// attempted.
func (m *JWTManager) keyfunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != constants.SigningAlgorithm {
		return nil, apperrors.ErrUnsupportedAlgorithm(token.Method.Alg())
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, apperrors.ErrUnknownKey(kid)
	}
	return m.keys.VerificationKey(kid)
}

// mapParseError translates golang-jwt failures into the typed taxonomy.
// Keyfunc errors already carry a kind and pass through unchanged.
func (m *JWTManager) mapParseError(err error) error {
	var appErr *apperrors.Error
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.ErrMalformedToken(err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.ErrInvalidSignature(err)
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return apperrors.ErrTokenExpired()
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.ErrClaimsInvalid("issuer mismatch")
	case stderrors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.ErrClaimsInvalid("audience mismatch")
	case stderrors.Is(err, jwt.ErrTokenNotValidYet), stderrors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return apperrors.ErrClaimsInvalid("token not yet valid")
	case stderrors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return apperrors.ErrClaimsInvalid("required claim missing")
	default:
		return apperrors.ErrMalformedToken(err)
	}
}
