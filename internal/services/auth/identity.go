package auth

import (
	"context"
	"strconv"
)

// Identity is the authenticated caller. UserID is the sender id for sender
// tokens and the admin's account id for admin tokens.
type Identity struct {
	UserID   int64
	Role     string
	Reviewer string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Actor names the caller in audit entries and block records.
func (i Identity) Actor() string {
	if i.Reviewer != "" {
		return i.Reviewer
	}
	return strconv.FormatInt(i.UserID, 10)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(ctxKey{}).(Identity)
	return identity, ok
}
