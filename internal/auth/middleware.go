package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/logger"
)

type contextKey string

const actorKey contextKey = "actor"

// Resolver turns the bearer token of a request into an Actor.
type Resolver struct {
	Verifier TokenVerifier
	Logger   *logger.Logger
}

func NewResolver(verifier TokenVerifier, log *logger.Logger) *Resolver {
	return &Resolver{Verifier: verifier, Logger: log}
}

// Resolve returns Guest with a nil error when no token is sent.
func (r *Resolver) Resolve(req *http.Request) (Actor, error) {
	rawToken, err := ExtractTokenFromRequest(req)
	if errors.Is(err, ErrNoToken) {
		return Guest(), nil
	}
	if err != nil {
		return Guest(), err
	}
	if r.Verifier == nil {
		return Guest(), errors.New("token verification is not configured")
	}

	claims, err := r.Verifier.Verify(req.Context(), rawToken)
	if err != nil {
		return Guest(), err
	}
	return ActorFromClaims(claims)
}

// OptionalActor resolves the caller when a token is present; bad tokens fall back to guest.
func (r *Resolver) OptionalActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		actor, err := r.Resolve(req)
		if err != nil {
			r.Logger.LogSecurity("TOKEN", fmt.Sprintf("ignoring invalid token on %s: %v", req.URL.Path, err))
			actor = Guest()
		}
		next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
	})
}

// RequireActor rejects requests without a valid token.
func (r *Resolver) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		actor, err := r.Resolve(req)
		if err != nil || actor.IsGuest() {
			if err != nil {
				r.Logger.LogSecurity("TOKEN", fmt.Sprintf("rejected token on %s: %v", req.URL.Path, err))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"Unauthenticated"}`))
			return
		}
		next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns Guest when no actor was stored.
func ActorFrom(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey).(Actor); ok {
		return actor
	}
	return Guest()
}
