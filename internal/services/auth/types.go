package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Roles carried in the "role" claim. A token without one is a sender token.
const (
	RoleSender = "sender"
	RoleAdmin  = "admin"
)

// Claims is what the identity provider signs for the gateway. Admin tokens
// also carry the reviewer handle that review and block actions are audited under.
type Claims struct {
	Role     string `json:"role,omitempty"`
	Reviewer string `json:"reviewer,omitempty"`
	jwt.RegisteredClaims
}

type VerifiedToken struct {
	SubjectID int64
	Role      string
	Reviewer  string
	ExpiresAt time.Time
}
