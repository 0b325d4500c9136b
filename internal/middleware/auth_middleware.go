package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/jwt"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

type contextKey string

const EditorIDKey contextKey = "editorID"

// AuthMiddleware accepts a bearer token and puts the editor id it carries in
// the request context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
				info.editorID = claims.EditorID
			}

			ctx := WithEditorID(r.Context(), claims.EditorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithEditorID(ctx context.Context, editorID string) context.Context {
	return context.WithValue(ctx, EditorIDKey, editorID)
}

func GetEditorID(r *http.Request) string {
	editorID, ok := r.Context().Value(EditorIDKey).(string)
	if !ok {
		return ""
	}
	return editorID
}
