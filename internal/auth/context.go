package auth

import "context"

type contextKey struct{}

// User is the authenticated caller of a request.
type User struct {
	ID    string
	Email string
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}

// UserID returns the authenticated user's id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	u, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return u.ID
}
