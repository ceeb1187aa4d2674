// Package models defines the domain models for the token trust core.
package models

import (
	"crypto/rsa"
	"time"

	"github.com/veridia/tokencore/pkg/constants"
)

// SigningKey is the metadata and material of one asymmetric signing key.
// A key is created during initialization or rotation, flips Active exactly
// once (active to inactive, after the rotation grace period), and is purged
// only when no unexpired token could still reference it.
type SigningKey struct {
	// KID is the opaque unique identifier, stable for the key's lifetime.
	// It is embedded in the header of every token signed with the key.
	KID string `json:"kid"`

	// Algorithm is fixed to the pinned signature algorithm. It is recorded
	// per key for interoperability but never negotiated from token input.
	Algorithm string `json:"algorithm"`

	// PrivatePEM is the PKCS#1 private material. It never leaves the crypto
	// package; persistence backends store it with owner-only access.
	PrivatePEM []byte `json:"-"`

	// PublicPEM is the PKIX public material.
	PublicPEM []byte `json:"public_pem"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Active reports whether the key may sign new tokens. An inactive key
	// remains available for verification until retention expires.
	Active bool `json:"active"`

	// DeactivateAt is the grace-period deadline after which the key stops
	// signing. Zero while the key is current.
	DeactivateAt time.Time `json:"deactivate_at,omitzero"`

	// private is the parsed private key, populated once on load.
	private *rsa.PrivateKey
	// public is the parsed public key, populated once on load.
	public *rsa.PublicKey
}

// Status derives the lifecycle status from the Active flag.
func (k *SigningKey) Status() constants.KeyStatus {
	if k.Active {
		return constants.KeyStatusActive
	}
	return constants.KeyStatusInactive
}

// Age returns how long the key has existed as of now.
func (k *SigningKey) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// PurgeEligible reports whether no outstanding token could still reference
// the key. Retention anchors on the key's last possible signing moment: a
// superseded key may have signed right up to its deactivation deadline, so it
// must survive until that deadline plus the maximum token lifetime. A key
// deactivated without a recorded deadline falls back to creation plus
// lifetime plus grace.
func (k *SigningKey) PurgeEligible(now time.Time, maxTokenTTL, gracePeriod time.Duration) bool {
	if k.Active {
		return false
	}
	anchor := k.DeactivateAt.Add(maxTokenTTL)
	if k.DeactivateAt.IsZero() {
		anchor = k.CreatedAt.Add(maxTokenTTL + gracePeriod)
	}
	return now.After(anchor)
}

// SetParsedKeys caches the parsed key material. Called once by the crypto
// layer when a key is loaded or generated.
func (k *SigningKey) SetParsedKeys(private *rsa.PrivateKey, public *rsa.PublicKey) {
	k.private = private
	k.public = public
}

// Private returns the parsed private key, or nil if not loaded.
func (k *SigningKey) Private() *rsa.PrivateKey {
	return k.private
}

// Public returns the parsed public key, or nil if not loaded.
func (k *SigningKey) Public() *rsa.PublicKey {
	return k.public
}
