package jwt

import "github.com/golang-jwt/jwt/v5"

// Payload defines the JWT claims carried by a MentorLink bearer credential.
type Payload struct {
	// RegisteredClaims carries sub (the user id), exp, iat and iss.
	jwt.RegisteredClaims

	// Role is informational only; the verifier always trusts the user store's role.
	Role string `json:"role,omitempty"`
}

// UserID returns the subject of the token.
func (p *Payload) UserID() string {
	return p.Subject
}
