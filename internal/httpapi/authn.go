package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"casedesk.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
}

// withAuth restores the session behind the bearer token and stores its user
// in the request context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if a.deps.Sessions == nil {
			writeError(w, r, http.StatusServiceUnavailable, "sessions unavailable")
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="casedesk"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		sess, err := a.deps.Sessions.CurrentSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="casedesk", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			a.log.Error("session lookup failed", zap.Error(err), zap.String("request_id", RequestIDFromContext(r.Context())))
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), sess.User)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// viewer returns the session user of the request, or nil.
func viewer(r *http.Request) *auth.User {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil
	}
	return &u
}

// extractBearerToken reads the Authorization header. SSE clients cannot set
// headers, so the access_token query parameter is accepted on the stream.
func extractBearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		if r.URL.Path == "/v1/stream" {
			if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
				return tok, nil
			}
		}
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
