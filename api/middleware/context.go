package middleware

import "context"

type contextKey string

const ctxMembershipID contextKey = "membership_id"

// MembershipIDFromContext returns the acting membership id seeded by Auth, or
// an empty string for upstream system calls that carry none.
func MembershipIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxMembershipID).(string); ok {
		return v
	}
	return ""
}

// WithMembershipID injects the acting membership id into the context.
func WithMembershipID(ctx context.Context, membershipID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMembershipID, membershipID)
}
