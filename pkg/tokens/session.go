package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims of a session token issued by the identity
// provider. Subject carries the user id.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks session tokens. RS256 is used when a public key is
// configured, HS256 with the shared secret otherwise.
type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
}

func NewVerifier(secret, publicKeyPEM []byte) (*Verifier, error) {
	v := &Verifier{secret: secret}
	if len(publicKeyPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse session public key: %w", err)
		}
		v.publicKey = key
	}
	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, errors.New("no session verification key configured")
	}
	return v, nil
}

func (v *Verifier) Parse(tokenStr string) (*SessionClaims, error) {
	var claims SessionClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if v.publicKey != nil {
			if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
				return nil, errors.New("unexpected sign method")
			}
			return v.publicKey, nil
		}
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid session token")
	}
	if claims.Subject == "" {
		return nil, errors.New("session token has no subject")
	}
	return &claims, nil
}
