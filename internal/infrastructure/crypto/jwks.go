package crypto

import (
	"encoding/base64"
	"math/big"
)

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the document served to resource servers for offline verification.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS renders every held key, inactive ones included: tokens signed before
// a rotation must stay verifiable offline until they expire.
func (m *KeyManager) JWKS() JWKS {
	held := m.Keys()
	doc := JWKS{Keys: make([]JWK, 0, len(held))}
	for _, key := range held {
		pub := key.Public()
		if pub == nil {
			continue
		}
		doc.Keys = append(doc.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: key.Algorithm,
			Kid: key.KID,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return doc
}
