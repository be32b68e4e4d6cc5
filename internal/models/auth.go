package models

import "github.com/golang-jwt/jwt/v5"

// AuthContext identifies the caller for authorization decisions. It is built
// per request from the verified JWT and never persisted.
type AuthContext struct {
	UserID       string
	IsSuperAdmin bool
}

// JWTClaims represents the JWT payload for access tokens issued by the
// upstream identity service.
type JWTClaims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	SuperAdmin bool   `json:"super_admin"`
	jwt.RegisteredClaims
}

// AuthContext converts claims into the authorization context used by services.
func (c *JWTClaims) AuthContext() AuthContext {
	if c == nil {
		return AuthContext{}
	}
	return AuthContext{UserID: c.UserID, IsSuperAdmin: c.SuperAdmin}
}
