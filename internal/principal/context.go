package principal

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role names resolved by the authentication layer upstream of this core.
const (
	RoleSubscriber = "subscriber"
	RoleEmployee   = "employee"
	RoleReviewer   = "reviewer"
	RoleAdmin      = "admin"
)

// Principal identifies the authenticated caller. The core trusts the ID and
// role supplied here; it performs ownership and claim checks only.
type Principal struct {
	ID   snowflake.ID
	Role string
}

type contextKey struct{}

// WithPrincipal stores the acting principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the acting principal, if set.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(contextKey{}).(Principal)
	if !ok || p.ID == 0 {
		return Principal{}, false
	}
	return p, true
}

// CanReview reports whether the principal may act on letters awaiting review.
func (p Principal) CanReview() bool {
	return p.Role == RoleReviewer || p.Role == RoleAdmin
}
