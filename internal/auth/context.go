package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores the caller's role and subject in context.
func WithIdentity(ctx context.Context, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	return context.WithValue(ctx, contextKeySubject, subject)
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	switch value := ctx.Value(contextKeyRole).(type) {
	case Role:
		return value
	case string:
		if role, ok := NormalizeRole(value); ok {
			return role
		}
	}
	return ""
}

// SubjectFromContext extracts the token subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}
