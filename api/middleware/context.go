package middleware

import (
	"context"

	"github.com/google/uuid"
)

type principalKey struct{}

// Principal is the caller identity Auth resolved from the access token.
type Principal struct {
	UserID    uuid.UUID
	IsGuest   bool
	SessionID string
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// WithUserID stores a member principal for userID. Invalid ids leave ctx
// unauthenticated.
func WithUserID(ctx context.Context, userID string) context.Context {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ctx
	}
	p, _ := PrincipalFromContext(ctx)
	p.UserID = id
	return WithPrincipal(ctx, p)
}

// UserUUIDFromContext returns the authenticated user id.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

// UserIDFromContext is UserUUIDFromContext as a string, empty when
// unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := UserUUIDFromContext(ctx); ok {
		return id.String()
	}
	return ""
}

func IsGuestFromContext(ctx context.Context) bool {
	p, _ := PrincipalFromContext(ctx)
	return p.IsGuest
}
