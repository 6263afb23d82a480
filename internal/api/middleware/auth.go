package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/quill-labs/quillai/internal/api"
)

type contextKey string

// WorkspaceIDKey is the context key under which the authenticated workspace
// id is stored.
const WorkspaceIDKey contextKey = "workspace_id"

// AuthValidator resolves a bearer token to the workspace it belongs to.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// APIKeyAuth rejects requests without a valid "Bearer qll_..." token and puts
// the resolved workspace id on the request context. Validation failures all
// answer 401 without detail so tokens cannot be probed.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			workspaceID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			r.Header.Set("X-Workspace-ID", workspaceID)
			ctx := context.WithValue(r.Context(), WorkspaceIDKey, workspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWorkspaceID returns the workspace id set by APIKeyAuth, or "".
func GetWorkspaceID(ctx context.Context) string {
	workspaceID, _ := ctx.Value(WorkspaceIDKey).(string)
	return workspaceID
}
