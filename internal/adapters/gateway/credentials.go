package gateway

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials are the claims the engine reads from the user's bearer token.
// The signature is not verified here; the backend enforces authorization.
type Credentials struct {
	Token     string
	Subject   string
	PublicID  string
	Role      string
	ExpiresAt time.Time
}

// ParseCredentials reads the claims of token and refuses one already expired at now.
func ParseCredentials(token string, now time.Time) (Credentials, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	creds := Credentials{
		Token:    token,
		PublicID: claimString(claims, "public_id", "id_publico", "id", "user_id"),
		Role:     claimString(claims, "rol", "role"),
	}
	if sub, err := claims.GetSubject(); err == nil {
		creds.Subject = sub
	}
	if creds.PublicID == "" {
		creds.PublicID = creds.Subject
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if exp != nil {
		creds.ExpiresAt = exp.Time
		if !now.Before(exp.Time) {
			return creds, fmt.Errorf("%w: expired at %s", ErrTokenExpired, exp.Time.Format(time.RFC3339))
		}
	}
	return creds, nil
}

// Expired reports whether the token is past its expiry at now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
