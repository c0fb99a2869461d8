package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/clinicalledger/internal/infrastructure/auth"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
)

// ActorIDHeader carries the practitioner id when bearer tokens are disabled.
const ActorIDHeader = "X-Actor-ID"

// ContextKey is the type for context keys
type ContextKey string

const (
	// ActorContextKey is the context key for the acting practitioner
	ActorContextKey ContextKey = "actor"
)

// Actor is the practitioner a request acts on behalf of.
type Actor struct {
	ID   string
	Name string
	Role string
}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// ActorMiddleware resolves the acting practitioner. With a verifier every
// request needs a valid bearer token; without one the trusted X-Actor-ID
// header is used and may be absent on reads.
type ActorMiddleware struct {
	verifier TokenVerifier
	metrics  *metrics.Metrics
}

// NewActorMiddleware creates a new ActorMiddleware. A nil verifier disables
// bearer tokens.
func NewActorMiddleware(verifier TokenVerifier, m *metrics.Metrics) *ActorMiddleware {
	return &ActorMiddleware{verifier: verifier, metrics: m}
}

// Wrap wraps an http.Handler with actor resolution.
func (m *ActorMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor *Actor

		if m.verifier != nil {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				m.reject(w, "missing", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				m.reject(w, "malformed", "invalid authorization header format")
				return
			}

			claims, err := m.verifier.Verify(parts[1])
			if err != nil {
				m.reject(w, failureReason(err), "invalid or expired token")
				return
			}
			actor = &Actor{ID: claims.ActorID, Name: claims.Name, Role: claims.Role}
		} else if id := strings.TrimSpace(r.Header.Get(ActorIDHeader)); id != "" {
			actor = &Actor{ID: id}
		}

		if actor == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ActorContextKey, actor)
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("actor_id", actor.ID)
			})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ActorMiddleware) reject(w http.ResponseWriter, reason, message string) {
	if m.metrics != nil {
		m.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	http.Error(w, message, http.StatusUnauthorized)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired"
	case errors.Is(err, auth.ErrMissingActor):
		return "no_actor"
	default:
		return "invalid"
	}
}

// ActorFromContext extracts the acting practitioner from ctx.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(*Actor)
	return actor, ok
}

// ActorID returns the acting practitioner's id, or "" when the request has
// none.
func ActorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.ID
	}
	return ""
}
