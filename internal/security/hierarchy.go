package security

import (
	"errors"
	"log/slog"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/users"
)

// ErrHierarchyViolation is the soft-fail outcome of a guard check: the
// caller logs, notifies the actor and performs no mutation. It never
// propagates past the command handler.
var ErrHierarchyViolation = errors.New("security: hierarchy not respected")

// Guard applies power-based comparison rules to moderation actions so no
// actor can act on a peer or superior. All comparisons are strict.
type Guard struct {
	logger *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{logger: logger}
}

// UserHierarchyRespected reports whether agent outranks target. Equal power
// is a violation: peers cannot act on each other.
func (g *Guard) UserHierarchyRespected(agent, target users.User) bool {
	return target.RolePower < agent.RolePower
}

// RoleHierarchyRespected reports whether agent may grant or edit a role:
// the agent must outrank the role and already hold every permission the
// role carries.
func (g *Guard) RoleHierarchyRespected(agent users.User, rolePower int, rolePerms permission.Permission) bool {
	return agent.RolePower > rolePower && agent.Permissions.Has(rolePerms)
}

// CheckUserAction gates a moderation action against a target user. On
// violation it logs both identities and returns ErrHierarchyViolation; the
// caller must not mutate anything.
func (g *Guard) CheckUserAction(action string, agent, target users.User) error {
	if g.UserHierarchyRespected(agent, target) {
		return nil
	}
	g.logger.Warn("hierarchy violation",
		slog.String("action", action),
		slog.Int64("agent_id", agent.ID),
		slog.Int("agent_power", agent.RolePower),
		slog.Int64("target_id", target.ID),
		slog.Int("target_power", target.RolePower))
	return ErrHierarchyViolation
}

// CheckRoleAction gates granting or editing a role.
func (g *Guard) CheckRoleAction(action string, agent users.User, roleName string, rolePower int, rolePerms permission.Permission) error {
	if g.RoleHierarchyRespected(agent, rolePower, rolePerms) {
		return nil
	}
	g.logger.Warn("hierarchy violation",
		slog.String("action", action),
		slog.Int64("agent_id", agent.ID),
		slog.Int("agent_power", agent.RolePower),
		slog.String("role", roleName),
		slog.Int("role_power", rolePower))
	return ErrHierarchyViolation
}
