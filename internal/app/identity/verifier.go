/*
Package identity resolves a bearer credential to the user it speaks for.

The Verifier is the only gate in front of the realtime connection and the REST
message endpoints: nothing is trusted about a caller until Authenticate succeeds.
*/
package identity

import (
	"context"
	"errors"
	"strings"

	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/auth/jwt"
	"mentorlink/internal/pkg/errs"
)

// Identity is the authenticated caller. It never changes for the lifetime of a connection.
type Identity struct {
	UserID string
	Role   user.Role
	Name   string
}

// Verifier validates credentials against a shared secret and the user directory.
type Verifier struct {
	secret string
	users  user.Directory
}

// NewVerifier returns a Verifier using secret for HS256 and users for subject lookup.
func NewVerifier(secret string, users user.Directory) *Verifier {
	return &Verifier{
		secret: secret,
		users:  users,
	}
}

// Authenticate resolves credential to an Identity. Errors are CustomErrors with
// one of ErrMissingCredential, ErrInvalidCredential, ErrExpiredCredential or
// ErrUnknownSubject; a directory failure surfaces as ErrUnknown.
func (v *Verifier) Authenticate(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, errs.NewError(errs.ErrMissingCredential)
	}

	payload, err := jwt.ParseToken(credential, v.secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errs.Wrap(errs.ErrExpiredCredential, err)
		}
		return Identity{}, errs.Wrap(errs.ErrInvalidCredential, err)
	}

	u, err := v.users.FindUser(ctx, payload.UserID())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, errs.Wrap(errs.ErrUnknownSubject, err)
		}
		return Identity{}, errs.Wrap(errs.ErrUnknown, err)
	}

	return Identity{
		UserID: u.ID,
		Role:   u.Role,
		Name:   u.Name,
	}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
