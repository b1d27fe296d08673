package httpapi

import (
	"net/http"
	"strings"

	"reserv.org/internal/auth"
)

// publicPaths require no bearer token.
var publicPaths = map[string]struct{}{
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
	"/v1/info":       {},
	"/v1/auth/login": {},
}

// withAuth resolves the bearer token into a Principal and stores it on the
// request context. Requests without a valid token on protected paths are
// rejected outright.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, http.StatusForbidden, "missing credentials")
			return
		}

		claims, err := auth.ParseAndValidate(raw)
		if err != nil {
			writeError(w, r, http.StatusForbidden, "invalid credentials")
			return
		}

		principal, err := a.auth.Principal(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, r, http.StatusForbidden, "invalid credentials")
			return
		}
		if !principal.IsActive() {
			writeError(w, r, http.StatusForbidden, "account is not active")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requirePrincipal fetches the principal or writes a 403.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusForbidden, "missing credentials")
		return auth.Principal{}, false
	}
	return p, true
}

// requirePermission fetches the principal and checks one permission.
func requirePermission(w http.ResponseWriter, r *http.Request, perm string) (auth.Principal, bool) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !p.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "not authorized")
		return auth.Principal{}, false
	}
	return p, true
}
