package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claims structure accepted by the server. The subject
// claim doubles as the storage user id, so it is bounded by the same length
// limit as the users table.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the user id from the JWT subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}
