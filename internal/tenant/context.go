// Package tenant carries the identity of the tenant (and acting user) that a
// logical operation runs for. The identity travels inside context.Context, so
// every request owns its own copy and nested scopes never leak outward.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Actor types recorded in audit rows.
const (
	ActorStaff    = "staff"
	ActorCustomer = "customer"
	ActorSystem   = "system"
)

const maxIDLength = 64

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidTenantID is a configuration error: the id cannot be used for
// session scoping and must never be silently ignored.
var ErrInvalidTenantID = errors.New("invalid tenant id")

// Scope is the per-request identity.
type Scope struct {
	TenantID  string
	ActorID   string
	ActorType string
}

type scopeKey struct{}

// WithScope returns a child context bound to s. The parent is not modified,
// so the outer scope is back in effect as soon as the caller stops using the
// child.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithTenant binds only a tenant id, keeping any actor already in ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	s, _ := FromContext(ctx)
	s.TenantID = tenantID
	return WithScope(ctx, s)
}

// FromContext returns the scope bound to ctx, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// ID returns the current tenant id or "" in administrative (unscoped) mode.
func ID(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.TenantID
}

// ValidateID checks id against the allow-list used before it is interpolated
// into a session-scoping statement.
func ValidateID(id string) error {
	if len(id) == 0 || len(id) > maxIDLength || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}
