/*
Package user contains the identity data the realtime core consumes from the
external user store: who a user is and which side of the mentorship they are on.
*/
package user

import (
	"context"
	"errors"
)

// Role is the side of the mentorship a user belongs to.
type Role string

const (
	RoleMentor Role = "mentor"
	RoleMentee Role = "mentee"
)

// ErrNotFound is returned by a Directory when no user matches the id.
var ErrNotFound = errors.New("user not found")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMentor || r == RoleMentee
}

// Complement returns the role on the other side of the mentorship.
func (r Role) Complement() Role {
	if r == RoleMentor {
		return RoleMentee
	}
	return RoleMentor
}

// User represents the public profile of a participant.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"id" bson:"_id"`

	// Name is the display name shown next to messages.
	Name string `json:"name" bson:"name"`

	// Role is either mentor or mentee.
	Role Role `json:"role" bson:"role"`

	// Field is the user's area of expertise or interest.
	Field string `json:"field,omitempty" bson:"field,omitempty"`

	// ProfileImage is an object-storage key or an absolute URL.
	ProfileImage string `json:"profileImage,omitempty" bson:"profileImage,omitempty"`
}

// Directory resolves user ids to profiles. Implementations return ErrNotFound
// for unknown ids.
type Directory interface {
	FindUser(ctx context.Context, id string) (User, error)
}
