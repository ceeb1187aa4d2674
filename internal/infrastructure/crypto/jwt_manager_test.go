package crypto

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

const (
	testIssuer   = "tokencore-test"
	testAudience = "veridia-api"
)

func newTestCodec(t *testing.T, clk clock.Clock) (*JWTManager, *KeyManager) {
	t.Helper()
	m, _ := newTestManager(t, clk, KeyManagerConfig{GracePeriod: 24 * time.Hour})
	require.NoError(t, m.Initialize(context.Background()))
	codec := NewJWTManager(m, JWTManagerConfig{
		Issuer:   testIssuer,
		Audience: testAudience,
	}, clk, logger.NewNoop())
	return codec, m
}

func testClaims(now time.Time, subject string, ttl time.Duration, typ constants.TokenType) *models.Claims {
	return &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		TokenType: typ,
		Roles:     []string{"creator"},
		Version:   constants.ClaimsVersion,
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, keys := newTestCodec(t, clk)

	claims := testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess)
	signed, kid, err := codec.SignClaims(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, keys.CurrentKID(), kid)

	got, err := codec.ParseAndVerify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "creator-42", got.Subject)
	assert.Equal(t, claims.ID, got.ID)
	assert.Equal(t, constants.TokenTypeAccess, got.TokenType)
	assert.Equal(t, []string{"creator"}, got.Roles)
}

func TestVerifyExpiryBoundaryIsExact(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, _ := newTestCodec(t, clk)

	signed, _, err := codec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess))
	require.NoError(t, err)

	clk.Advance(time.Hour - time.Second)
	_, err = codec.ParseAndVerify(ctx, signed)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	_, err = codec.ParseAndVerify(ctx, signed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExpired), "got %v", err)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, keys := newTestCodec(t, clk)

	claims := testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsigned.Header["kid"] = keys.CurrentKID()
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.ParseAndVerify(ctx, tokenString)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsupportedAlgorithm), "got %v", err)
}

func TestVerifyRejectsForeignAlgorithm(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, keys := newTestCodec(t, clk)

	claims := testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess)
	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	hmac.Header["kid"] = keys.CurrentKID()
	tokenString, err := hmac.SignedString([]byte("attacker-chosen-secret"))
	require.NoError(t, err)

	_, err = codec.ParseAndVerify(ctx, tokenString)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsupportedAlgorithm), "got %v", err)
}

func TestVerifyRejectsUnknownKID(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, _ := newTestCodec(t, clk)
	foreignCodec, _ := newTestCodec(t, clk)

	signed, _, err := foreignCodec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess))
	require.NoError(t, err)

	_, err = codec.ParseAndVerify(ctx, signed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownKey), "got %v", err)
}

func TestVerifyRejectsMissingKIDHeader(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, keys := newTestCodec(t, clk)

	_, private, err := keys.CurrentSigningKey()
	require.NoError(t, err)
	bare := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess))
	tokenString, err := bare.SignedString(private)
	require.NoError(t, err)

	_, err = codec.ParseAndVerify(ctx, tokenString)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownKey), "got %v", err)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, _ := newTestCodec(t, clk)

	signed, _, err := codec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess))
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	tampered := strings.Replace(string(payload), "creator-42", "creator-99", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(tampered))

	_, err = codec.ParseAndVerify(ctx, strings.Join(parts, "."))
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidSignature), "got %v", err)
}

func TestVerifyRejectsIssuerAndAudienceMismatch(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, _ := newTestCodec(t, clk)

	wrongIssuer := testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess)
	wrongIssuer.Issuer = "someone-else"
	signed, _, err := codec.SignClaims(ctx, wrongIssuer)
	require.NoError(t, err)
	_, err = codec.ParseAndVerify(ctx, signed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindClaimsInvalid), "got %v", err)

	wrongAudience := testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess)
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}
	signed, _, err = codec.SignClaims(ctx, wrongAudience)
	require.NoError(t, err)
	_, err = codec.ParseAndVerify(ctx, signed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindClaimsInvalid), "got %v", err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, _ := newTestCodec(t, clk)

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		_, err := codec.ParseAndVerify(ctx, input)
		assert.True(t, apperrors.IsKind(err, apperrors.KindMalformed), "input %q got %v", input, err)
	}
}

func TestVerifySurvivesRotationUntilExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	codec, keys := newTestCodec(t, clk)

	signed, oldKID, err := codec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", 72*time.Hour, constants.TokenTypeRefresh))
	require.NoError(t, err)

	newKID, err := keys.Rotate(ctx)
	require.NoError(t, err)
	require.NotEqual(t, oldKID, newKID)

	// Immediately after rotation.
	got, err := codec.ParseAndVerify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "creator-42", got.Subject)

	// After the grace period the old key is inactive but still verifies.
	clk.Advance(25 * time.Hour)
	require.NoError(t, keys.Reconcile(ctx))
	_, err = codec.ParseAndVerify(ctx, signed)
	require.NoError(t, err)

	// New issuance uses the new key.
	_, kid, err := codec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", time.Hour, constants.TokenTypeAccess))
	require.NoError(t, err)
	assert.Equal(t, newKID, kid)
}
