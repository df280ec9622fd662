package shared

import "context"

type contextKey string

const (
	actorKey   contextKey = "actor"
	companyKey contextKey = "company"
)

// Actor identifies who performs a mutating operation. It is stamped onto
// posted entries and audit records.
type Actor struct {
	ID       int64
	Username string
}

// WithActor stores the acting user in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the acting user, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithCompany scopes the context to a tenant.
func WithCompany(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyKey, companyID)
}

// CompanyFromContext returns the tenant scope, if any.
func CompanyFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyKey).(int64)
	return id, ok
}
