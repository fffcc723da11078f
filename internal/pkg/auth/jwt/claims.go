package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claims structure carried by identity tokens. It embeds the
// standard JWT claims and identifies the authenticated user.
type Payload struct {
	jwt.StandardClaims

	// ID is the unique identifier of the authenticated user.
	ID string `json:"id"`

	// Username is the login name of the authenticated user.
	Username string `json:"username"`
}
