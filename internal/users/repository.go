package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for users and their
// append-only logs. Banned and active are computed per query over the logs
// (derive, don't cache).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateIfAbsent inserts the user row and its captcha status row when
// missing. Reports whether the user was created by this call.
func (r *Repository) CreateIfAbsent(ctx context.Context, id int64) (bool, error) {
	var created bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO captcha_status (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
			return err
		}
		created = tag.RowsAffected() > 0
		return nil
	})
	return created, err
}

// GetUser loads the user DTO including the power of its assigned role.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	var mask int64
	var delayMs *int64
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.permissions, u.role_name, r.power, u.chat_delay_ms, u.created_at
		FROM users u
		JOIN roles r ON r.name = u.role_name
		WHERE u.id = $1`, id,
	).Scan(&u.ID, &mask, &u.RoleName, &u.RolePower, &delayMs, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Permissions = permission.Permission(mask)
	if delayMs != nil {
		d := time.Duration(*delayMs) * time.Millisecond
		u.ChatDelay = &d
	}
	return u, nil
}

// IsBanned reports whether now falls inside any unrevoked ban interval.
// Both interval ends are inclusive.
func (r *Repository) IsBanned(ctx context.Context, id int64, now time.Time) (bool, error) {
	var banned bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ban_log
			WHERE user_id = $1 AND revoked_at IS NULL
			  AND start_date <= $2 AND end_date >= $2)`, id, now,
	).Scan(&banned)
	return banned, err
}

// IsActive reports whether the latest join postdates the latest quit.
func (r *Repository) IsActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT MAX(joined_at) FROM join_log WHERE user_id = $1), 'epoch') >
		       COALESCE((SELECT MAX(quit_at) FROM quit_log WHERE user_id = $1), 'epoch')`, id,
	).Scan(&active)
	return active, err
}

// LogJoin appends a join row.
func (r *Repository) LogJoin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO join_log (user_id, joined_at) VALUES ($1, $2)`, id, at)
	return err
}

// LogQuit appends a quit row.
func (r *Repository) LogQuit(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO quit_log (user_id, quit_at) VALUES ($1, $2)`, id, at)
	return err
}

// InsertBan appends a ban interval and the accompanying quit row in one
// transaction: banning always kicks.
func (r *Repository) InsertBan(ctx context.Context, id int64, start, end time.Time, reason string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ban_log (user_id, start_date, end_date, reason)
			VALUES ($1, $2, $3, $4)`, id, start, end, reason); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO quit_log (user_id, quit_at) VALUES ($1, $2)`, id, start)
		return err
	})
}

// RevokeBans marks every interval covering now as revoked. Rows are never
// deleted so the full history survives.
func (r *Repository) RevokeBans(ctx context.Context, id int64, at time.Time, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ban_log SET revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
		  AND start_date <= $2 AND end_date >= $2`, id, at, reason)
	return err
}

// SetPermissions overwrites the user's cached permission mask.
func (r *Repository) SetPermissions(ctx context.Context, id int64, perms permission.Permission) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET permissions = $2 WHERE id = $1`, id, int64(perms))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole reassigns the user's role and overwrites the cached permission
// mask with the role's mask in the same statement.
func (r *Repository) AssignRole(ctx context.Context, id int64, roleName string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET role_name = r.name, permissions = r.permissions
		FROM roles r
		WHERE users.id = $1 AND r.name = $2`, id, roleName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetChatDelay stores a per-user anti-flood override.
func (r *Repository) SetChatDelay(ctx context.Context, id int64, delay time.Duration) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET chat_delay_ms = $2 WHERE id = $1`, id, delay.Milliseconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetChatDelay clears the per-user override.
func (r *Repository) ResetChatDelay(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET chat_delay_ms = NULL WHERE id = $1`, id)
	return err
}

// BanLog returns the user's ban intervals, most recent first.
func (r *Repository) BanLog(ctx context.Context, id int64) ([]BanRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, start_date, end_date, reason, revoked_at, COALESCE(revoke_reason, '')
		FROM ban_log WHERE user_id = $1
		ORDER BY start_date DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BanRecord
	for rows.Next() {
		var rec BanRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.StartDate, &rec.EndDate, &rec.Reason, &rec.RevokedAt, &rec.RevokeReason); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// JoinQuitLog returns the merged join/quit history, most recent first.
func (r *Repository) JoinQuitLog(ctx context.Context, id int64) ([]MembershipEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, 'join' AS kind, joined_at AS at FROM join_log WHERE user_id = $1
		UNION ALL
		SELECT user_id, 'quit' AS kind, quit_at AS at FROM quit_log WHERE user_id = $1
		ORDER BY at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MembershipEvent
	for rows.Next() {
		var ev MembershipEvent
		var kind string
		if err := rows.Scan(&ev.UserID, &kind, &ev.At); err != nil {
			return nil, err
		}
		ev.Kind = MembershipEventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ActiveRecipients returns every user eligible to receive a broadcast:
// latest join after latest quit, not banned at now, captcha passed, and
// holding every bit of required.
func (r *Repository) ActiveRecipients(ctx context.Context, required permission.Permission, now time.Time) ([]Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.permissions
		FROM users u
		JOIN captcha_status cs ON cs.user_id = u.id
		WHERE cs.passed
		  AND (u.permissions & $1) = $1
		  AND COALESCE((SELECT MAX(joined_at) FROM join_log j WHERE j.user_id = u.id), 'epoch') >
		      COALESCE((SELECT MAX(quit_at) FROM quit_log q WHERE q.user_id = u.id), 'epoch')
		  AND NOT EXISTS (
			SELECT 1 FROM ban_log b
			WHERE b.user_id = u.id AND b.revoked_at IS NULL
			  AND b.start_date <= $2 AND b.end_date >= $2)
		ORDER BY u.id`, int64(required), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rec Recipient
		var mask int64
		if err := rows.Scan(&rec.ID, &mask); err != nil {
			return nil, err
		}
		rec.Permissions = permission.Permission(mask)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetCaptchaStatus loads the user's captcha record.
func (r *Repository) GetCaptchaStatus(ctx context.Context, id int64) (CaptchaStatus, error) {
	var st CaptchaStatus
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, current_value, creation_time, last_try_time,
		       failed_attempts, total_failed_attempts, passed
		FROM captcha_status WHERE user_id = $1`, id,
	).Scan(&st.UserID, &st.CurrentValue, &st.CreationTime, &st.LastTryTime,
		&st.FailedAttempts, &st.TotalFailedAttempts, &st.Passed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CaptchaStatus{}, ErrNotFound
		}
		return CaptchaStatus{}, err
	}
	return st, nil
}

// SaveCaptchaStatus persists the whole captcha record in one update.
func (r *Repository) SaveCaptchaStatus(ctx context.Context, st CaptchaStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE captcha_status
		SET current_value = $2, creation_time = $3, last_try_time = $4,
		    failed_attempts = $5, total_failed_attempts = $6, passed = $7
		WHERE user_id = $1`,
		st.UserID, st.CurrentValue, st.CreationTime, st.LastTryTime,
		st.FailedAttempts, st.TotalFailedAttempts, st.Passed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStaleChallenges clears challenge values issued before cutoff for
// users who have not passed yet, forcing a fresh challenge on next contact.
// Reports how many records were cleared.
func (r *Repository) ExpireStaleChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE captcha_status
		SET current_value = ''
		WHERE passed = FALSE AND current_value <> '' AND creation_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
