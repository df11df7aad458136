package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rodolfot/ebooks/internal/checkout"
)

type ctxKey string

const userKey ctxKey = "authed-user"

// AuthedUser is the caller identity extracted from the bearer token.
type AuthedUser struct {
	checkout.User
	Role string
}

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates the Authorization bearer token (HS256) and stores
// the caller identity in the request context. Requests without a valid token
// get a 401.
func Authenticator(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "authentication_required", "")
				return
			}

			var claims sessionClaims
			parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !parsed.Valid || claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "invalid_token", "")
				return
			}

			user := AuthedUser{
				User: checkout.User{
					ID:    claims.Subject,
					Email: claims.Email,
					Name:  claims.Name,
				},
				Role: claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

// RequireAdmin gates admin-only routes on the role claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user.Role != "ADMIN" {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the authenticated caller, if any.
func UserFromContext(ctx context.Context) (AuthedUser, bool) {
	user, ok := ctx.Value(userKey).(AuthedUser)
	return user, ok
}
