package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/repository"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// TokenServiceConfig carries the issuer identity and default lifetimes.
type TokenServiceConfig struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// tokenService orchestrates issuance, verification, and revocation. It owns
// the claim construction rules and the verification order; signing and the
// ledger are delegated.
type tokenService struct {
	crypto CryptoService
	ledger RevocationLedger
	tokens repository.TokenRepository
	cfg    TokenServiceConfig
	clk    clock.Clock
	log    logger.Logger
	audit  *logger.AuditLogger
}

// NewTokenService wires the facade.
func NewTokenService(
	crypto CryptoService,
	ledger RevocationLedger,
	tokens repository.TokenRepository,
	cfg TokenServiceConfig,
	clk clock.Clock,
	log logger.Logger,
	audit *logger.AuditLogger,
) TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = constants.AccessTokenDefaultTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = constants.RefreshTokenDefaultTTL
	}
	return &tokenService{
		crypto: crypto,
		ledger: ledger,
		tokens: tokens,
		cfg:    cfg,
		clk:    clk,
		log:    log.WithComponent("token_service"),
		audit:  audit,
	}
}

// Issue mints a token for the subject. Refresh tokens are additionally
// recorded durably so that per-subject mass revocation can find them later;
// access tokens are not tracked, their exposure is bounded by short TTLs.
func (s *tokenService) Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	if req.Subject == "" {
		return nil, apperrors.ErrInvalidArgument("subject must not be empty")
	}
	if !req.TokenType.Valid() {
		return nil, apperrors.ErrInvalidArgument("unknown token type %q", req.TokenType)
	}
	ttl, err := s.resolveTTL(req)
	if err != nil {
		return nil, err
	}
	for name := range req.Extra {
		if models.IsReservedClaim(name) {
			return nil, apperrors.ErrInvalidArgument("extra claim %q collides with a reserved claim", name)
		}
	}

	now := s.clk.Now()
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   req.Subject,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		TokenType: req.TokenType,
		Roles:     req.Roles,
		Version:   constants.ClaimsVersion,
		Extra:     req.Extra,
	}

	signed, kid, err := s.crypto.SignClaims(ctx, claims)
	if err != nil {
		return nil, err
	}

	if req.TokenType == constants.TokenTypeRefresh {
		record := &models.TokenRecord{
			JTI:       claims.ID,
			Subject:   req.Subject,
			TokenType: req.TokenType,
			KID:       kid,
			IssuedAt:  now,
			ExpiresAt: claims.ExpiresAt.Time,
		}
		// A refresh token that mass revocation cannot find must not exist.
		if err := s.tokens.Save(ctx, record); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		s.audit.TokenIssued(ctx, req.Subject, claims.ID, req.TokenType)
	}
	return &IssuedToken{
		Token:     signed,
		KID:       kid,
		Claims:    claims,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify runs the full check order: signature and standard claims through
// the codec, then the token-type gate, then the revocation ledger. The order
// guarantees revocation is checked only on otherwise valid tokens, so a
// forged token can never trigger a ledger lookup.
func (s *tokenService) Verify(ctx context.Context, token string, opts VerifyOptions) (*models.Claims, error) {
	claims, err := s.crypto.ParseAndVerify(ctx, token)
	if err != nil {
		s.auditRejection(ctx, err)
		return nil, err
	}

	if opts.ExpectedType != "" && claims.TokenType != opts.ExpectedType {
		err := apperrors.ErrClaimsInvalid("token type mismatch").
			WithMeta("expected", string(opts.ExpectedType)).
			WithMeta("got", string(claims.TokenType))
		s.auditRejection(ctx, err)
		return nil, err
	}

	if !opts.SkipRevocation {
		revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			err := apperrors.ErrTokenRevoked(claims.ID)
			s.auditRejection(ctx, err)
			return nil, err
		}
	}
	return claims, nil
}

// Revoke invalidates a presented token. The token must carry a valid
// signature: revocation by unauthenticated string would let anyone probe the
// ledger. An already-expired token is a no-op.
func (s *tokenService) Revoke(ctx context.Context, token, reason string) error {
	claims, err := s.crypto.ParseAndVerify(ctx, token)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindExpired) {
			s.log.Debug(ctx, "revocation of expired token is a no-op")
			return nil
		}
		return err
	}
	return s.revokeClaims(ctx, claims.ID, claims.Subject, claims.TokenType, claims.ExpiresAt.Time, reason)
}

// RevokeByJTI invalidates a tracked token by identifier. Only durably
// recorded tokens qualify; the lookup is what legitimizes the request.
func (s *tokenService) RevokeByJTI(ctx context.Context, jti, reason string) error {
	record, err := s.tokens.FindByJTI(ctx, jti)
	if err != nil {
		return err
	}
	if !s.clk.Now().Before(record.ExpiresAt) {
		s.log.Debug(ctx, "revocation of expired token is a no-op", logger.String("jti", jti))
		return nil
	}
	return s.revokeClaims(ctx, record.JTI, record.Subject, record.TokenType, record.ExpiresAt, reason)
}

// RevokeAllForSubject revokes every live tracked token of a subject. Access
// tokens in flight are not tracked and age out within their short TTL.
func (s *tokenService) RevokeAllForSubject(ctx context.Context, subject, reason string) (int64, error) {
	if subject == "" {
		return 0, apperrors.ErrInvalidArgument("subject must not be empty")
	}

	now := s.clk.Now()
	records, err := s.tokens.FindLiveBySubject(ctx, subject, now)
	if err != nil {
		return 0, err
	}

	var revoked int64
	for _, record := range records {
		entry := &models.RevocationEntry{
			JTI:       record.JTI,
			Subject:   subject,
			Reason:    reason,
			ExpiresAt: record.ExpiresAt,
			RevokedAt: now,
		}
		if err := s.ledger.Add(ctx, entry); err != nil {
			return revoked, err
		}
		if err := s.tokens.MarkRevoked(ctx, record.JTI, reason, now); err != nil {
			s.log.Warn(ctx, "token record not marked revoked",
				logger.String("jti", record.JTI), logger.Err(err))
		}
		revoked++
	}

	if s.audit != nil {
		s.audit.SubjectRevoked(ctx, subject, reason, revoked)
	}
	return revoked, nil
}

func (s *tokenService) revokeClaims(ctx context.Context, jti, subject string, typ constants.TokenType, expiresAt time.Time, reason string) error {
	now := s.clk.Now()
	entry := &models.RevocationEntry{
		JTI:       jti,
		Subject:   subject,
		Reason:    reason,
		ExpiresAt: expiresAt,
		RevokedAt: now,
	}
	if err := s.ledger.Add(ctx, entry); err != nil {
		return err
	}

	if typ == constants.TokenTypeRefresh {
		if err := s.tokens.MarkRevoked(ctx, jti, reason, now); err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
			s.log.Warn(ctx, "token record not marked revoked", logger.String("jti", jti), logger.Err(err))
		}
	}

	if s.audit != nil {
		s.audit.TokenRevoked(ctx, subject, jti, reason)
	}
	return nil
}

func (s *tokenService) resolveTTL(req IssueRequest) (time.Duration, error) {
	if req.TTL != nil && *req.TTL <= 0 {
		return 0, apperrors.ErrInvalidArgument("ttl must be positive")
	}
	var ttl, max time.Duration
	switch req.TokenType {
	case constants.TokenTypeAccess:
		max = constants.AccessTokenMaxTTL
		ttl = s.cfg.AccessTTL
	case constants.TokenTypeRefresh:
		max = constants.RefreshTokenMaxTTL
		ttl = s.cfg.RefreshTTL
	}
	if req.TTL != nil {
		ttl = *req.TTL
	}
	if ttl > max {
		return 0, apperrors.ErrInvalidArgument("ttl %s exceeds the %s maximum of %s", ttl, req.TokenType, max)
	}
	return ttl, nil
}

func (s *tokenService) auditRejection(ctx context.Context, err error) {
	if s.audit == nil || !apperrors.IsVerificationRejection(err) {
		return
	}
	s.audit.VerificationRejected(ctx, apperrors.KindOf(err).String(), apperrors.IsHostileInput(err))
}
