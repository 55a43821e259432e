package auth

import "context"

type contextKey struct{}

type AuthContext struct {
	UID       string
	FamilyID  *string
	IsOwner   bool
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UID
}

// FamilyID returns the authenticated member's family id, or "" when they
// have none.
func FamilyID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.FamilyID == nil {
		return ""
	}
	return *ac.FamilyID
}

// IsOwner reports whether the authenticated member owns their family.
func IsOwner(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsOwner
}
