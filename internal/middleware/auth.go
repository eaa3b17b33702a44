package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
)

type contextKey string

const (
	UserIDContextKey contextKey = "user_id"
	RoleContextKey   contextKey = "user_role"

	// SessionUserIDKey and SessionRoleKey are written by the identity service at login
	SessionUserIDKey = "user_id"
	SessionRoleKey   = "role"

	RoleOperator = "operator"
)

// AuthMiddleware reads the authenticated user from the session cookie
type AuthMiddleware struct {
	store       sessions.Store
	sessionName string
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(store sessions.Store, sessionName string, logger *zap.Logger) *AuthMiddleware {
	if sessionName == "" {
		sessionName = "session"
	}
	return &AuthMiddleware{store: store, sessionName: sessionName, logger: logger}
}

// LoadUser adds the session's user id to the request context when present
func (m *AuthMiddleware) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.store.Get(r, m.sessionName)
		if err != nil {
			// Continue without user if session is invalid
			logging.Debug(r.Context(), m.logger, "ignoring unreadable session", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := sessionUserID(session.Values[SessionUserIDKey])
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		if role, ok := session.Values[SessionRoleKey].(string); ok && role != "" {
			ctx = WithRole(ctx, role)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an authenticated user
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects authenticated users without one of the given roles
func (m *AuthMiddleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserIDFromContext(r.Context()); !ok {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}

			role := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSONError(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		})
	}
}

// sessionUserID accepts the types session codecs may hand back
func sessionUserID(value interface{}) (int64, bool) {
	var id int64
	switch v := value.(type) {
	case int64:
		id = v
	case int:
		id = int64(v)
	case float64:
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	default:
		return 0, false
	}
	return id, id > 0
}

// UserIDFromContext returns the authenticated user id
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDContextKey).(int64)
	return id, ok && id > 0
}

// WithUserID sets the authenticated user id in the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// WithRole sets the authenticated user's role in the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleContextKey, role)
}

// RoleFromContext returns the authenticated user's role, if any
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleContextKey).(string)
	return role
}
