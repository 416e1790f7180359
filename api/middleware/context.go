package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

type principalKey struct{}

// Principal is the authenticated operator behind an admin request.
type Principal struct {
	AdminID   uuid.UUID
	Role      enums.AdminRole
	SessionID string
}

// WithPrincipal stores p on ctx. Auth does this for every admin request;
// tests use it to fake an authenticated caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the operator stored by Auth, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.AdminID != uuid.Nil
}
