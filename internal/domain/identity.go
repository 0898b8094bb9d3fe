package domain

import "context"

// Identity names the user and session a turn belongs to. It rides on the
// context of every call made on the turn's behalf so tool guards and
// metrics can attribute work without extra parameters.
type Identity struct {
	UserID    string
	SessionID string
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity on ctx, or the zero Identity.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}
