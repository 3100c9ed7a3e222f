package auth

import "context"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Principal is the authenticated caller of a request. System is set for
// trusted internal services, which act on behalf of any order owner.
type Principal struct {
	UserID string
	Email  string
	Role   string
	System bool
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanActFor reports whether the caller may operate on a resource owned by ownerID.
func (p Principal) CanActFor(ownerID string) bool {
	if p.System {
		return true
	}
	return p.UserID != "" && p.UserID == ownerID
}

// Actor names the caller in audit records.
func (p Principal) Actor() string {
	if p.System {
		return "system"
	}
	if p.IsAdmin() {
		return "admin:" + p.UserID
	}
	return "user:" + p.UserID
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
