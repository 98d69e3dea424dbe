package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/office-hub/internal/auth"
)

// AuthMiddleware resolves bearer tokens into principals
type AuthMiddleware struct {
	auth *auth.Service
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(svc *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{auth: svc}
}

// Authenticate verifies the bearer token from the Authorization header.
// Requests without a token continue as the anonymous principal; a token
// that fails verification is rejected.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			ctx := ContextWithPrincipal(r.Context(), m.auth.Anonymous())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		p, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenRevoked) {
				slog.Warn("rejected token", "error", err, "token_prefix", maskToken(token), "remote_addr", r.RemoteAddr)
				respondError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}
			slog.Error("failed to authenticate request", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		slog.Debug("authenticated request", "user_id", p.UserID, "role", p.Role)

		ctx := ContextWithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission returns middleware that checks for specific permission
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil || (!p.Authenticated() && !p.HasPermission(permission)) {
				respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication credentials were not provided")
				return
			}

			if !p.HasPermission(permission) {
				slog.Warn("permission denied",
					"user_id", p.UserID,
					"role", p.Role,
					"required", permission,
				)
				respondError(w, http.StatusForbidden, "permission_denied",
					"you do not have permission to perform this action: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated rejects anonymous callers
func (m *AuthMiddleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := PrincipalFromContext(r.Context()); p == nil || !p.Authenticated() {
			respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication credentials were not provided")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}

// maskToken returns first 8 chars of a token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}

// loggingMiddleware logs HTTP requests using slog
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// timeoutMiddleware bounds request handling, except for websocket
// upgrades which live as long as the client stays connected
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		bounded := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			bounded.ServeHTTP(w, r)
		})
	}
}
