package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"biovault.org/internal/auth"
)

const (
	authHeader   = "Authorization"
	apiKeyHeader = "X-Api-Key"
	bearer       = "Bearer "
)

var publicPaths = map[string]struct{}{
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
	"/v1/auth/register": {},
	"/v1/auth/token":    {},
}

// isPublic reports whether the route is reachable without credentials.
// Besides the utility endpoints, only catalog reads qualify.
func isPublic(r *http.Request) bool {
	if _, ok := publicPaths[r.URL.Path]; ok {
		return true
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/products") {
		return true
	}
	return false
}

// withAuth resolves the caller identity from a bearer token or an API
// key and attaches it to the context. Requests without credentials pass
// through only on public routes; the services still decide what an
// anonymous caller may see.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get(authHeader))
		apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))

		switch {
		case header != "":
			token, err := extractBearerToken(header)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			actor, err := a.actorFromToken(r, token)
			if err != nil {
				a.respondError(w, r, err)
				return
			}
			ctx := auth.ContextWithActor(r.Context(), actor)
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		case apiKey != "":
			actor, err := a.actorFromAPIKey(r, apiKey)
			if err != nil {
				a.respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithActor(r.Context(), actor)))
		case isPublic(r):
			next.ServeHTTP(w, r)
		default:
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		}
	})
}

func (a *API) actorFromToken(r *http.Request, token string) (*auth.Actor, error) {
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	actor, err := a.accounts.Actor(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	if actor.Status != auth.StatusActive {
		return nil, auth.ErrUnauthorized
	}
	return actor, nil
}

func (a *API) actorFromAPIKey(r *http.Request, key string) (*auth.Actor, error) {
	actorID, err := a.webstore.AuthenticateAPIKey(r.Context(), key)
	if err != nil {
		return nil, auth.ErrUnauthorized
	}
	actor, err := a.accounts.Actor(r.Context(), actorID)
	if err != nil {
		return nil, auth.ErrUnauthorized
	}
	if actor.Status != auth.StatusActive {
		return nil, auth.ErrUnauthorized
	}
	return actor, nil
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
