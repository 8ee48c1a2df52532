package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/poppyflores/checkout-backend/api/responses"
	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity resolves the optional bearer token to a user email. Anonymous
// requests pass through; a presented but invalid token is rejected. The
// resolved email gates the account-only coupon downstream.
func Identity(cfg config.IdentityConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseIdentityToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			email := strings.TrimSpace(claims.Email)
			if email == "" {
				email = strings.TrimSpace(claims.Subject)
			}
			if email == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no identity"))
				return
			}

			ctx := WithUserEmail(r.Context(), email)
			if logg != nil {
				ctx = logg.WithField(ctx, "user_email", email)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseIdentityToken(cfg config.IdentityConfig, token string) (*identityClaims, error) {
	claims := &identityClaims{}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, options...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}
