// Package crypto implements the signing key lifecycle and the JWT codec.
// Key material is generated, persisted, rotated, and purged here; nothing
// outside this package ever touches a private key.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
)

// KeyStore is the durable persistence contract for signing keys. Backends
// must store private material with owner-only access and must keep the
// metadata record authoritative for the Active flag and the deactivation
// deadline.
type KeyStore interface {
	// Save persists a key, material and metadata together. Saving an
	// existing KID overwrites its metadata; the material of a key never
	// changes after creation.
	Save(ctx context.Context, key *models.SigningKey) error

	// LoadAll returns every persisted key with its material parsed.
	LoadAll(ctx context.Context) ([]*models.SigningKey, error)

	// MarkInactive durably flips a key's Active flag off. Unknown KIDs are
	// an error; marking an already-inactive key again is a no-op.
	MarkInactive(ctx context.Context, kid string) error
}

const (
	pemTypeRSAPrivate = "RSA PRIVATE KEY"
	pemTypePublic     = "PUBLIC KEY"
)

// NewSigningKey generates a fresh RSA signing key with a random KID and the
// pinned algorithm. The key starts active with no deactivation deadline.
func NewSigningKey(now time.Time) (*models.SigningKey, error) {
	private, err := rsa.GenerateKey(rand.Reader, constants.RSAKeyBits)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnknown, "generate rsa key")
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnknown, "marshal public key")
	}

	key := &models.SigningKey{
		KID:       uuid.NewString(),
		Algorithm: constants.SigningAlgorithm,
		PrivatePEM: pem.EncodeToMemory(&pem.Block{
			Type:  pemTypeRSAPrivate,
			Bytes: x509.MarshalPKCS1PrivateKey(private),
		}),
		PublicPEM: pem.EncodeToMemory(&pem.Block{
			Type:  pemTypePublic,
			Bytes: publicDER,
		}),
		CreatedAt: now.UTC(),
		Active:    true,
	}
	key.SetParsedKeys(private, &private.PublicKey)
	return key, nil
}

// parseKeyMaterial populates the parsed key pair from the PEM fields.
func parseKeyMaterial(key *models.SigningKey) error {
	block, _ := pem.Decode(key.PrivatePEM)
	if block == nil || block.Type != pemTypeRSAPrivate {
		return fmt.Errorf("key %s: private material is not a %s PEM block", key.KID, pemTypeRSAPrivate)
	}
	private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("key %s: parse private key: %w", key.KID, err)
	}

	pubBlock, _ := pem.Decode(key.PublicPEM)
	if pubBlock == nil {
		return fmt.Errorf("key %s: public material is not a PEM block", key.KID)
	}
	pub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return fmt.Errorf("key %s: parse public key: %w", key.KID, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("key %s: public key is %T, want *rsa.PublicKey", key.KID, pub)
	}

	key.SetParsedKeys(private, rsaPub)
	return nil
}
