package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRole inserts a new role. Returns ErrRoleExists on a name collision.
func (r *Repository) CreateRole(ctx context.Context, name string, power int, perms permission.Permission) (Role, error) {
	var role Role
	var mask int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, power, permissions)
		VALUES ($1, $2, $3)
		RETURNING id, name, power, permissions, created_at`,
		name, power, int64(perms),
	).Scan(&role.ID, &role.Name, &role.Power, &mask, &role.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return Role{}, ErrRoleExists
		}
		return Role{}, err
	}
	role.Permissions = permission.Permission(mask)
	return role, nil
}

// GetRole fetches a role by name.
func (r *Repository) GetRole(ctx context.Context, name string) (Role, error) {
	var role Role
	var mask int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, power, permissions, created_at
		FROM roles WHERE name = $1`, name,
	).Scan(&role.ID, &role.Name, &role.Power, &mask, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions = permission.Permission(mask)
	return role, nil
}

// SetPower updates the power rank of a role.
func (r *Repository) SetPower(ctx context.Context, name string, power int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET power = $2 WHERE name = $1`, name, power)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPermissions replaces a role's mask and overwrites the cached mask of
// every member in the same transaction, keeping users in sync with their
// role.
func (r *Repository) SetPermissions(ctx context.Context, name string, perms permission.Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET permissions = $2 WHERE name = $1`, name, int64(perms))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE users SET permissions = $2 WHERE role_name = $1`, name, int64(perms))
		return err
	})
}

// DeleteRole removes a role, reassigning its members to the default role and
// overwriting their masks with the default role's mask, atomically.
func (r *Repository) DeleteRole(ctx context.Context, name string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var defaultMask int64
		if err := tx.QueryRow(ctx, `SELECT permissions FROM roles WHERE name = $1`, DefaultRoleName).Scan(&defaultMask); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET role_name = $1, permissions = $2 WHERE role_name = $3`,
			DefaultRoleName, defaultMask, name); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListRoles returns all roles in insertion order.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, power, permissions, created_at
		FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		var mask int64
		if err := rows.Scan(&role.ID, &role.Name, &role.Power, &mask, &role.CreatedAt); err != nil {
			return nil, err
		}
		role.Permissions = permission.Permission(mask)
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
