package access

import (
	"context"
	"strings"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleService = "service"
)

// Actor is the authenticated caller as forwarded by the gateway.
type Actor struct {
	UserID string
	Handle string
	Roles  []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// ParseRoles splits a comma separated role header, lower-casing and dropping blanks.
func ParseRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
