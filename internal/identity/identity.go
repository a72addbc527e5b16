// Package identity verifies the bearer tokens issued by the external sign-in
// provider and extracts the caller's identity from them. Token issuance is
// out of scope; this service only consumes tokens.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated identity carried by a verified token.
type Principal struct {
	UserID string
	Email  string
}

// ErrInvalidToken is returned for tokens that are malformed, expired, or
// signed with the wrong key.
var ErrInvalidToken = errors.New("identity: invalid token")

// Verifier validates HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier constructs a verifier for the given signing secret.
func NewVerifier(secret string, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), now: now}
}

// Verify parses and validates a token string, returning the principal it
// identifies. The sub claim is required; email is optional.
func (v *Verifier) Verify(tokenStr string) (Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return Principal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)

	return Principal{
		UserID: subject,
		Email:  strings.ToLower(email),
	}, nil
}

// FromAuthorizationHeader extracts the bearer token from an Authorization
// header value and verifies it.
func (v *Verifier) FromAuthorizationHeader(header string) (Principal, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return v.Verify(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
}
