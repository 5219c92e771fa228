package auth

import "context"

type userContextKey struct{}
type tokenContextKey struct{}

// ContextWithUser attaches the session user to the context.
func ContextWithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, &user)
}

// UserFromContext extracts the session user from the context.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*User)
	if !ok || v == nil {
		return User{}, false
	}
	return *v, true
}

// PermissionsFromContext is For applied to the context user.
func PermissionsFromContext(ctx context.Context) Permissions {
	user, ok := UserFromContext(ctx)
	if !ok {
		return Permissions{}
	}
	return For(&user)
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
