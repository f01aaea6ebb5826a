package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT body of a turnkey caller.
type Claims struct {
	MerchantID       string   `json:"merchant_id"`
	TestMode         bool     `json:"test_mode,omitempty"`
	StripeCustomerID string   `json:"stripe_customer_id,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Badge converts the claims into the caller identity used by the sagas.
func (c *Claims) Badge() auth.Badge {
	return auth.Badge{
		MerchantID:          c.MerchantID,
		TestMode:            c.TestMode,
		ProcessorCustomerID: c.StripeCustomerID,
		Scopes:              c.Scopes,
	}
}

// RequireAuth validates an HS256 bearer token and stores the caller's badge
// in the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header", "auth_required")
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token", "auth_invalid")
				return
			}
			if claims.MerchantID == "" {
				writeAuthError(w, http.StatusUnauthorized, "token has no merchant id", "auth_invalid")
				return
			}

			ctx := auth.NewContext(r.Context(), claims.Badge())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects callers whose badge lacks scope. It must run after
// RequireAuth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			badge, ok := auth.FromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header", "auth_required")
				return
			}
			if !badge.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "missing scope "+scope, "auth_insufficient_scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
