package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/domain"
)

type contextKey string

const (
	OrgIDKey    contextKey = "org_id"
	APIKeyIDKey contextKey = "api_key_id"
)

// AuthValidator resolves a presented API token to its key record
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (*domain.APIKey, error)
}

// APIKeyAuth authenticates requests with a Bearer API token and scopes the
// request context to the key's organization.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			key, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			r.Header.Set("X-Org-ID", key.OrgID)
			ctx := context.WithValue(r.Context(), OrgIDKey, key.OrgID)
			ctx = context.WithValue(ctx, APIKeyIDKey, key.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOrgID returns the authenticated organization id from context
func GetOrgID(ctx context.Context) string {
	orgID, _ := ctx.Value(OrgIDKey).(string)
	return orgID
}
