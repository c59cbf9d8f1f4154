package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/common"
)

// AdminRole is the role required on admin tokens.
const AdminRole = "admin"

// AdminGuard protects catalog writes with an HS256 bearer token. With no
// secret configured the guard is disabled and requests pass through.
type AdminGuard struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// NewAdminGuard builds a guard requiring the admin role and, when set, issuer.
func NewAdminGuard(secret, issuer string) AdminGuard {
	return AdminGuard{
		Secret:    []byte(strings.TrimSpace(secret)),
		Validator: TokenValidator{Issuer: issuer, Role: AdminRole, ClockSkew: 30 * time.Second},
	}
}

// Enabled reports whether tokens are checked.
func (g AdminGuard) Enabled() bool { return len(g.Secret) > 0 }

// RequireAdmin rejects requests without a valid admin token.
func (g AdminGuard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		raw := bearerToken(r)
		if raw == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		tok, err := jwt.ParseString(raw, jwt.WithKey(jwa.HS256, g.Secret), jwt.WithValidate(false))
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("admin token rejected")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if err := g.Validator.Validate(tok, g.now()); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("admin token rejected")
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin token required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g AdminGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
