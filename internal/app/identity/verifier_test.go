package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/auth/jwt"
	"mentorlink/internal/pkg/errs"
)

const secret = "identity-test-secret"

type directory map[string]user.User

func (d directory) FindUser(_ context.Context, id string) (user.User, error) {
	if id == "broken" {
		return user.User{}, errors.New("connection refused")
	}
	u, ok := d[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

var users = directory{
	"m1": {ID: "m1", Name: "Mia", Role: user.RoleMentor},
}

func sign(t *testing.T, subject, key string, ttl time.Duration) string {
	t.Helper()

	token, err := jwt.GenerateToken(subject, "mentor", key, ttl)
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	v := NewVerifier(secret, users)

	id, err := v.Authenticate(context.Background(), sign(t, "m1", secret, time.Hour))

	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "m1", Role: user.RoleMentor, Name: "Mia"}, id)
}

func TestAuthenticateRejections(t *testing.T) {
	v := NewVerifier(secret, users)

	tests := []struct {
		name       string
		credential string
		code       int
	}{
		{"missing", "  ", errs.ErrMissingCredential},
		{"malformed", "abc.def", errs.ErrInvalidCredential},
		{"wrong key", sign(t, "m1", "other-secret", time.Hour), errs.ErrInvalidCredential},
		{"expired", sign(t, "m1", secret, -time.Minute), errs.ErrExpiredCredential},
		{"unknown subject", sign(t, "ghost", secret, time.Hour), errs.ErrUnknownSubject},
		{"directory failure", sign(t, "broken", secret, time.Hour), errs.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Authenticate(context.Background(), tt.credential)

			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
			assert.Empty(t, id.UserID)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("abc"))
}

func TestRequireIdentity(t *testing.T) {
	v := NewVerifier(secret, users)

	var seen Identity
	h := RequireIdentity(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "m1", secret, time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "m1", seen.UserID)
}
