package security_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/security"
	"github.com/anonlounge/anonlounge/internal/users"
)

func user(id int64, power int, perms permission.Permission) users.User {
	return users.User{ID: id, RolePower: power, Permissions: perms}
}

func TestUserHierarchy(t *testing.T) {
	guard := security.NewGuard(slog.Default())

	cases := []struct {
		name          string
		agent, target int
		want          bool
	}{
		{"superior acts on inferior", 20, 10, true},
		{"equal power is refused", 10, 10, false},
		{"inferior acts on superior", 10, 20, false},
		{"zero on zero", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := guard.UserHierarchyRespected(user(1, tc.agent, 0), user(2, tc.target, 0))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckUserActionSoftFails(t *testing.T) {
	guard := security.NewGuard(slog.Default())

	err := guard.CheckUserAction("ban", user(1, 10, 0), user(2, 10, 0))
	assert.ErrorIs(t, err, security.ErrHierarchyViolation)

	assert.NoError(t, guard.CheckUserAction("ban", user(1, 20, 0), user(2, 10, 0)))
}

func TestRoleHierarchyRequiresPowerAndPermissions(t *testing.T) {
	guard := security.NewGuard(slog.Default())
	agent := user(1, 20, permission.Kick|permission.Ban|permission.Receive)

	assert.True(t, guard.RoleHierarchyRespected(agent, 10, permission.Kick))
	assert.False(t, guard.RoleHierarchyRespected(agent, 20, permission.Kick), "equal role power refused")
	assert.False(t, guard.RoleHierarchyRespected(agent, 10, permission.SetUserRole), "cannot grant permissions the agent lacks")
	assert.False(t, guard.RoleHierarchyRespected(agent, 30, permission.Kick))
}
