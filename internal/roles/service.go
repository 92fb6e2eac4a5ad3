package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anonlounge/anonlounge/internal/permission"
)

var (
	// ErrNotFound indicates the requested role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrRoleExists indicates a role name collision on create.
	ErrRoleExists = errors.New("roles: role already exists")
	// ErrCannotDeleteDefault protects the default role from deletion.
	ErrCannotDeleteDefault = errors.New("roles: cannot delete default role")
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name string, power int, perms permission.Permission) (Role, error)
	GetRole(ctx context.Context, name string) (Role, error)
	SetPower(ctx context.Context, name string, power int) error
	SetPermissions(ctx context.Context, name string, perms permission.Permission) error
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]Role, error)
}

// Service handles role registry business logic. Hierarchy checks are the
// caller's responsibility; the service enforces data invariants only.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a new role.
func (s *Service) Create(ctx context.Context, name string, power int, perms permission.Permission) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	if power < 0 {
		return Role{}, fmt.Errorf("roles: power must be >= 0, got %d", power)
	}
	role, err := s.repo.CreateRole(ctx, name, power, perms)
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("role created",
		slog.String("role", role.Name),
		slog.Int("power", role.Power),
		slog.String("permissions", role.Permissions.String()))
	return role, nil
}

// Get fetches a role by name.
func (s *Service) Get(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRole(ctx, strings.ToLower(strings.TrimSpace(name)))
}

// SetPower updates a role's power rank.
func (s *Service) SetPower(ctx context.Context, name string, power int) error {
	if power < 0 {
		return fmt.Errorf("roles: power must be >= 0, got %d", power)
	}
	if err := s.repo.SetPower(ctx, name, power); err != nil {
		return err
	}
	s.logger.Info("role power updated", slog.String("role", name), slog.Int("power", power))
	return nil
}

// SetPermissions replaces a role's mask. Every current member's cached mask
// is overwritten to match as part of the same update.
func (s *Service) SetPermissions(ctx context.Context, name string, perms permission.Permission) error {
	if err := s.repo.SetPermissions(ctx, name, perms); err != nil {
		return err
	}
	s.logger.Info("role permissions updated",
		slog.String("role", name),
		slog.String("permissions", perms.String()))
	return nil
}

// Delete removes a role. The default role is protected; members of the
// deleted role are reassigned to default.
func (s *Service) Delete(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == DefaultRoleName {
		return ErrCannotDeleteDefault
	}
	if err := s.repo.DeleteRole(ctx, name); err != nil {
		return err
	}
	s.logger.Info("role deleted, members reassigned to default", slog.String("role", name))
	return nil
}

// ListAll returns every role in insertion order.
func (s *Service) ListAll(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// EnsureDefault makes sure the default role exists with the given mask.
// Called once at startup before any user is admitted.
func (s *Service) EnsureDefault(ctx context.Context, perms permission.Permission) (Role, error) {
	role, err := s.repo.GetRole(ctx, DefaultRoleName)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	return s.Create(ctx, DefaultRoleName, 0, perms)
}
