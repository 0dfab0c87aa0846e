// Package identity carries the caller's identity through request context.
// Authentication itself happens upstream; the engine trusts the identity it
// is handed but still re-verifies ownership on every settlement-affecting
// action.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

// Actor is the authenticated caller for the current operation.
type Actor struct {
	UserID snowflake.ID
	Role   Role
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// SystemActor is the identity the scheduler acts under.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }
