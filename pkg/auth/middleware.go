package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/ghuser/campusreserve/pkg/httpx"
	"github.com/ghuser/campusreserve/pkg/logger"
)

const (
	sessionName         = "campusreserve_session"
	sessionUserIDKey    = "user_id"
	sessionRolesKey     = "roles"
	legacyTokenHeader   = "X-Auth-Token"
	bearerPrefix        = "Bearer "
	errAuthRequired     = "authentication required"
	errInvalidSession   = "invalid session data"
	errPermissionDenied = "permission denied"
)

// RequireAuth is a chi middleware that resolves the caller's user ID.
// A bearer token (Authorization header, or X-Auth-Token) is tried first; without
// one, the browser session cookie is used. Returns 401 Unauthorized when neither
// yields a valid user.
//
// After this middleware, handlers can safely call auth.UserIDFromCtx(r.Context()).
func RequireAuth(tokens *Tokens, store sessions.Store, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := bearerToken(r); raw != "" {
				if tokens == nil {
					httpx.JSONError(w, http.StatusUnauthorized, errAuthRequired)
					return
				}
				userID, roles, err := tokens.Verify(raw)
				if err != nil {
					log.WarnContext(r.Context(), "rejected bearer token", "error", err)
					httpx.JSONError(w, http.StatusUnauthorized, err.Error())
					return
				}
				ctx := WithRoles(WithUserID(r.Context(), userID), roles)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if store == nil {
				httpx.JSONError(w, http.StatusUnauthorized, errAuthRequired)
				return
			}
			session, err := store.Get(r, sessionName)
			if err != nil {
				log.WarnContext(r.Context(), "invalid session cookie", "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, errAuthRequired)
				return
			}

			userIDStr, ok := session.Values[sessionUserIDKey].(string)
			if !ok || userIDStr == "" {
				log.WarnContext(r.Context(), "session missing user_id")
				httpx.JSONError(w, http.StatusUnauthorized, errAuthRequired)
				return
			}

			userID, err := uuid.Parse(userIDStr)
			if err != nil {
				log.WarnContext(r.Context(), "invalid user_id in session", "user_id", userIDStr, "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, errInvalidSession)
				return
			}

			roles, _ := session.Values[sessionRolesKey].([]string)
			ctx := WithRoles(WithUserID(r.Context(), userID), roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers without role with 403. Mount it after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				httpx.JSONError(w, http.StatusForbidden, errPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return strings.TrimSpace(r.Header.Get(legacyTokenHeader))
}
