package domain

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the bearer token issued at login plus what the client can read
// from it. The backend issues JWTs; anything else is kept as an opaque token
// with no subject and no expiry.
type Credential struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
	SavedAt   time.Time
}

// ParseCredential inspects token without verifying its signature. Only the
// backend can verify; the client reads sub and exp to know who is logged in and
// when to stop presenting the token.
func ParseCredential(token string) Credential {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	cred := Credential{Token: token}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return cred
	}

	cred.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Expired reports whether the credential carries an expiry that is at or
// before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
