package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator resolves a bearer token to the user it was issued for.
type TokenValidator interface {
	ValidateAccessToken(token string) (userID string, err error)
}

// accessTokenParam carries the token on websocket upgrades, where browsers cannot set headers.
const accessTokenParam = "access_token"

// RequireAuth rejects requests without a valid bearer token with 401 and stores
// the authenticated user ID in the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				_ = SetErrorCode(r.Context(), "auth_failed")
				writeJSONError(w, http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil || userID == "" {
				_ = SetErrorCode(r.Context(), "auth_failed")
				writeJSONError(w, http.StatusUnauthorized, "auth_failed", "Invalid or expired token")
				return
			}

			ctx := SetUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling back to
// the access_token query parameter for websocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get(accessTokenParam)
	}
	return ""
}

// writeJSONError writes the API error envelope from inside middleware,
// which cannot import the api package.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	body := map[string]map[string]string{
		"error": {"code": code, "message": message},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
