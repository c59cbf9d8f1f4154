package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleClaim is the private claim carrying the caller role.
const RoleClaim = "role"

// TokenValidator validates the claims of an already verified token.
type TokenValidator struct {
	Issuer    string
	Audience  string
	Role      string
	ClockSkew time.Duration
}

// Validate checks expiry, issuer, audience and role against now. An empty
// Issuer, Audience or Role is not enforced.
func (v TokenValidator) Validate(tok jwt.Token, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if tok.Expiration().IsZero() {
		return errors.New("auth: token has no expiry")
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return err
	}

	if v.Role == "" {
		return nil
	}
	raw, ok := tok.Get(RoleClaim)
	if !ok {
		return errors.New("auth: token has no role")
	}
	if role, _ := raw.(string); role != v.Role {
		return fmt.Errorf("auth: role %v is not allowed", raw)
	}
	return nil
}
