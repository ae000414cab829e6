// Package authtoken inspects stored access tokens on the client side.
// The client never verifies signatures (it has no secret); it only
// reads the expiry claim to decide whether a persisted login is still
// worth presenting to the backend.
package authtoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expired reports whether the token carries an exp claim in the past.
// Opaque or malformed tokens are treated as non-expired: the backend is
// the authority and will reject them with a 401 if they are stale.
func Expired(tokenStr string, now time.Time) bool {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
