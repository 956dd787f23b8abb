package server

import (
	"net/http"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/request"
)

// MiddlewareConfig configures RESTGuardMiddleware
type MiddlewareConfig struct {
	// RESTPrefix is stripped from request paths to obtain the route (e.g. /wp-json)
	RESTPrefix string

	// SessionCookie names the login session cookie; empty disables cookie credentials
	SessionCookie string
}

// RESTGuardMiddleware guards REST requests served by a Go handler.
// A denied request gets the 401 JSON denial and next is never called.
func RESTGuardMiddleware(g *guard.Guard, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if g == nil {
		g = guard.New(guard.Config{})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := identity.WithCredential(r.Context(), identity.CredentialFromHeader(r.Header, cfg.SessionCookie))

			decision := g.CheckREST(ctx, request.FromHTTP(r, cfg.RESTPrefix))
			if !decision.Allowed {
				decision.Denied().WriteHTTP(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
