package roles_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/roles"
)

// stubRepo keeps roles and member masks in memory, mirroring the
// transactional side effects of the SQL repository.
type stubRepo struct {
	roles   map[string]roles.Role
	order   []string
	members map[int64]string
	masks   map[int64]permission.Permission
	nextID  int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		roles:   make(map[string]roles.Role),
		members: make(map[int64]string),
		masks:   make(map[int64]permission.Permission),
	}
}

func (s *stubRepo) CreateRole(_ context.Context, name string, power int, perms permission.Permission) (roles.Role, error) {
	if _, ok := s.roles[name]; ok {
		return roles.Role{}, roles.ErrRoleExists
	}
	s.nextID++
	role := roles.Role{ID: s.nextID, Name: name, Power: power, Permissions: perms}
	s.roles[name] = role
	s.order = append(s.order, name)
	return role, nil
}

func (s *stubRepo) GetRole(_ context.Context, name string) (roles.Role, error) {
	role, ok := s.roles[name]
	if !ok {
		return roles.Role{}, roles.ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) SetPower(_ context.Context, name string, power int) error {
	role, ok := s.roles[name]
	if !ok {
		return roles.ErrNotFound
	}
	role.Power = power
	s.roles[name] = role
	return nil
}

func (s *stubRepo) SetPermissions(_ context.Context, name string, perms permission.Permission) error {
	role, ok := s.roles[name]
	if !ok {
		return roles.ErrNotFound
	}
	role.Permissions = perms
	s.roles[name] = role
	for id, assigned := range s.members {
		if assigned == name {
			s.masks[id] = perms
		}
	}
	return nil
}

func (s *stubRepo) DeleteRole(_ context.Context, name string) error {
	if _, ok := s.roles[name]; !ok {
		return roles.ErrNotFound
	}
	def := s.roles[roles.DefaultRoleName]
	for id, assigned := range s.members {
		if assigned == name {
			s.members[id] = roles.DefaultRoleName
			s.masks[id] = def.Permissions
		}
	}
	delete(s.roles, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubRepo) ListRoles(_ context.Context) ([]roles.Role, error) {
	out := make([]roles.Role, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.roles[name])
	}
	return out, nil
}

func newService(t *testing.T) (*roles.Service, *stubRepo) {
	t.Helper()
	repo := newStubRepo()
	svc := roles.NewService(repo, slog.Default())
	_, err := svc.Create(context.Background(), roles.DefaultRoleName, 0, permission.Receive|permission.SendText)
	require.NoError(t, err)
	return svc, repo
}

func TestCreateDuplicateRole(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "mod", 10, permission.Kick)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "MOD", 10, permission.Kick)
	assert.ErrorIs(t, err, roles.ErrRoleExists)
}

func TestCreateRejectsNegativePower(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), "mod", -1, permission.None)
	assert.Error(t, err)
}

func TestDeleteDefaultIsRefused(t *testing.T) {
	svc, _ := newService(t)
	err := svc.Delete(context.Background(), roles.DefaultRoleName)
	assert.ErrorIs(t, err, roles.ErrCannotDeleteDefault)
}

func TestDeleteReassignsMembersToDefault(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "mod", 10, permission.Kick|permission.Ban)
	require.NoError(t, err)
	repo.members[42] = "mod"
	repo.masks[42] = permission.Kick | permission.Ban
	repo.members[7] = roles.DefaultRoleName

	require.NoError(t, svc.Delete(ctx, "mod"))

	assert.Equal(t, roles.DefaultRoleName, repo.members[42], "no dangling role reference")
	assert.Equal(t, permission.Receive|permission.SendText, repo.masks[42])
	_, err = svc.Get(ctx, "mod")
	assert.ErrorIs(t, err, roles.ErrNotFound)
}

func TestSetPermissionsResyncsMembers(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "mod", 10, permission.Kick)
	require.NoError(t, err)
	repo.members[42] = "mod"
	repo.masks[42] = permission.Kick

	require.NoError(t, svc.SetPermissions(ctx, "mod", permission.Kick|permission.Ban))
	assert.Equal(t, permission.Kick|permission.Ban, repo.masks[42])
}

func TestListAllInsertionOrder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "mod", 10, permission.None)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "admin", 20, permission.None)
	require.NoError(t, err)

	list, err := svc.ListAll(ctx)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, role := range list {
		names[i] = role.Name
	}
	assert.Equal(t, []string{"default", "mod", "admin"}, names)
}

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	role, err := svc.EnsureDefault(context.Background(), permission.All)
	require.NoError(t, err)
	// Already present: existing mask wins over the passed-in one.
	assert.Equal(t, permission.Receive|permission.SendText, role.Permissions)
}
