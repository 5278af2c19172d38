package auth

import "context"

type contextKey struct{}

// Context identifies the authenticated caller. HouseholdID is 0 when the
// user has not created or joined a household yet.
type Context struct {
	UserID      int64
	HouseholdID int64
	SessionID   int64
}

// Authenticated reports whether a caller identity was resolved.
func (c Context) Authenticated() bool {
	return c.UserID != 0
}

// HasHousehold reports whether the caller belongs to a household.
func (c Context) HasHousehold() bool {
	return c.HouseholdID != 0
}

func WithCaller(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(contextKey{}).(Context)
	return c, ok
}

// Caller returns the caller identity, zero-valued when unauthenticated.
func Caller(ctx context.Context) Context {
	c, _ := FromContext(ctx)
	return c
}
