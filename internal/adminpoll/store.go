// Package adminpoll persists polls opened through the privileged poll
// command. Unlike relayed member polls these survive restarts, and only the
// creating admin's vote events act on them.
package adminpoll

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no admin poll is registered under the given id.
var ErrNotFound = errors.New("adminpoll: not found")

// Poll is one open admin poll.
type Poll struct {
	PollID    string
	Kind      string
	CreatorID int64
	Payload   string
	CreatedAt time.Time
}

// Store provides PostgreSQL backed persistence for admin polls.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Register records a freshly opened admin poll.
func (s *Store) Register(ctx context.Context, p Poll) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_polls (poll_id, kind, creator_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.PollID, p.Kind, p.CreatorID, p.Payload, p.CreatedAt)
	return err
}

// Lookup loads an open admin poll by platform poll id.
func (s *Store) Lookup(ctx context.Context, pollID string) (Poll, error) {
	var p Poll
	err := s.pool.QueryRow(ctx, `
		SELECT poll_id, kind, creator_id, payload, created_at
		FROM admin_polls WHERE poll_id = $1`, pollID,
	).Scan(&p.PollID, &p.Kind, &p.CreatorID, &p.Payload, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Poll{}, ErrNotFound
		}
		return Poll{}, err
	}
	return p, nil
}

// Close removes a finished admin poll.
func (s *Store) Close(ctx context.Context, pollID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM admin_polls WHERE poll_id = $1`, pollID)
	return err
}
