package identity

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"mentorlink/internal/pkg/resp"
)

type contextKey string

// ContextIdentityKey stores the authenticated Identity in a request context.
const ContextIdentityKey contextKey = "identity"

// RequireIdentity rejects requests without a valid Authorization bearer credential
// and injects the resolved Identity into the request context.
func RequireIdentity(v *Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Authenticate(r.Context(), BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Rejected unauthenticated request")
				resp.RespondError(w, r, err)
				return
			}

			logger := zerolog.Ctx(r.Context()).With().Str("user_id", id.UserID).Logger()
			ctx := logger.WithContext(WithIdentity(r.Context(), id))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, id)
}

// FromContext returns the Identity stored by RequireIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ContextIdentityKey).(Identity)
	return id, ok
}
