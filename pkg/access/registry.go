package access

import (
	"context"
	"fmt"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Resources and actions checked by casbin.
const (
	ResourceWinning    = "winning"
	ResourceWithdrawal = "withdrawal"
	ResourceReconcile  = "reconcile"

	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleService, "*", "*"},
	{RoleUser, ResourceWinning, ActionRead},
	{RoleUser, ResourceWithdrawal, ActionCreate},
}

// Policy is the per-role access behaviour. A policy may additionally
// implement QueryFilterer and/or OwnershipVerifier.
type Policy interface {
	Role() string
}

// QueryFilterer narrows list queries to the rows a role may see.
type QueryFilterer interface {
	ApplyFilter(ctx context.Context, actor Actor, db *gorm.DB) *gorm.DB
}

// OwnershipVerifier checks the actor against the owner of a single record.
type OwnershipVerifier interface {
	VerifyAccess(ctx context.Context, actor Actor, ownerID string) error
}

type Registry struct {
	enforcer *casbin.Enforcer
	policies map[string]Policy
}

var Module = fx.Module("access", fx.Provide(NewRegistryFromConfig))

func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	var (
		enforcer *casbin.Enforcer
		err      error
	)

	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		enforcer, err = casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	} else {
		enforcer, err = defaultEnforcer()
	}
	if err != nil {
		return nil, fmt.Errorf("build access enforcer: %w", err)
	}

	return NewRegistry(enforcer, AdminPolicy{}, ServicePolicy{}, OwnerPolicy{Column: "winner_id"}), nil
}

func defaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func NewRegistry(enforcer *casbin.Enforcer, policies ...Policy) *Registry {
	r := &Registry{enforcer: enforcer, policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		r.policies[p.Role()] = p
	}
	return r
}

// NewDefaultRegistry uses the embedded casbin model and the built-in role policies.
func NewDefaultRegistry() (*Registry, error) {
	e, err := defaultEnforcer()
	if err != nil {
		return nil, err
	}
	return NewRegistry(e, AdminPolicy{}, ServicePolicy{}, OwnerPolicy{Column: "winner_id"}), nil
}

// Scope returns a gorm scope limiting rows to what actor may list. An actor
// holding any role without a filter sees everything; an actor holding no
// registered role sees nothing.
func (r *Registry) Scope(ctx context.Context, actor Actor) func(*gorm.DB) *gorm.DB {
	var filters []QueryFilterer
	known := false

	for _, role := range actor.Roles {
		p, ok := r.policies[role]
		if !ok {
			continue
		}
		known = true

		f, ok := p.(QueryFilterer)
		if !ok {
			return func(db *gorm.DB) *gorm.DB { return db }
		}
		filters = append(filters, f)
	}

	return func(db *gorm.DB) *gorm.DB {
		if !known {
			return db.Where("1 = 0")
		}
		for _, f := range filters {
			db = f.ApplyFilter(ctx, actor, db)
		}
		return db
	}
}

// VerifyAccess succeeds when at least one of the actor's roles is allowed the
// action on resource by casbin and, if the role checks ownership, owns the record.
func (r *Registry) VerifyAccess(ctx context.Context, actor Actor, resource, action, ownerID string) error {
	for _, role := range actor.Roles {
		allowed, err := r.enforcer.Enforce(role, resource, action)
		if err != nil {
			return errutil.Internal("access check failed", err)
		}
		if !allowed {
			continue
		}

		if v, ok := r.policies[role].(OwnershipVerifier); ok {
			if err := v.VerifyAccess(ctx, actor, ownerID); err != nil {
				continue
			}
		}
		return nil
	}

	return errutil.Forbidden(fmt.Sprintf("%s on %s is not allowed", action, resource), nil)
}
