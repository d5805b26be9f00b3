package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/store"
)

// userKey is the context key carrying the authenticated user.
type userKey struct{}

// withUser returns a copy of ctx carrying u.
func withUser(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// currentUser returns the authenticated user stored by authenticate.
func currentUser(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(userKey{}).(store.User)
	return u, ok
}

// authenticate returns an HTTP middleware that enforces Bearer token
// authentication. The token must verify and its subject must name an
// existing, active user; that user is reloaded from the store on every
// request and placed in the request context.
//
// Requests missing or presenting an invalid token receive 401 Unauthorized
// with a WWW-Authenticate: Bearer challenge. The token value is never logged.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header")
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat"`)
			writeError(w, r, http.StatusUnauthorized, "authorization required")
			return
		}

		claims, err := s.issuer.Verify(token)
		if err != nil {
			log.Warn("auth: invalid token", slog.Bool("token_present", true))
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat" error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "could not validate credentials")
			return
		}

		user, err := s.store.UserByEmail(r.Context(), claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("auth: token subject has no account")
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat" error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "user not found")
			return
		}
		if err != nil {
			internalError(w, r, "failed to load user", err)
			return
		}
		if !user.IsActive {
			log.Warn("auth: inactive user", slog.String("user_id", user.ID))
			writeError(w, r, http.StatusForbidden, "inactive user")
			return
		}

		noteUser(r.Context(), user.ID)
		ctx := logging.WithLogger(r.Context(), log.With(slog.String("user_id", user.ID)))
		next.ServeHTTP(w, r.WithContext(withUser(ctx, user)))
	})
}

// requireAdmin rejects callers whose role is not admin with 403. It must run
// inside authenticate.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(r.Context())
		if !ok || u.Role != store.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "not enough permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
