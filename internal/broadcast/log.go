package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

// Delivery is one copy of a relayed message landing in one recipient chat.
// A broadcast produces one row per recipient, all sharing BroadcastID.
type Delivery struct {
	BroadcastID uuid.UUID
	SenderID    int64
	RecipientID int64
	SenderMsgID int64
	SentMsgID   int64
	Kind        telegram.ContentKind
	SentAt      time.Time
}

// LogStore provides PostgreSQL backed persistence for the delivery log. The
// log answers "where did this message land" for bulk unsend and is purged on
// a retention schedule.
type LogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore constructs a store.
func NewLogStore(pool *pgxpool.Pool) *LogStore {
	return &LogStore{pool: pool}
}

// Insert records the deliveries of one broadcast in a single batch.
func (s *LogStore) Insert(ctx context.Context, deliveries []Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range deliveries {
		batch.Queue(`
			INSERT INTO message_log
				(broadcast_id, sender_id, recipient_id, sender_msg_id, sent_msg_id, kind, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.BroadcastID, d.SenderID, d.RecipientID, d.SenderMsgID, d.SentMsgID, string(d.Kind), d.SentAt)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// DeliveriesForSenderMessage returns every copy produced by the broadcast of
// the given message in its sender's chat.
func (s *LogStore) DeliveriesForSenderMessage(ctx context.Context, senderID, senderMsgID int64) ([]Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT broadcast_id, sender_id, recipient_id, sender_msg_id, sent_msg_id, kind, sent_at
		FROM message_log
		WHERE sender_id = $1 AND sender_msg_id = $2
		ORDER BY recipient_id`, senderID, senderMsgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// PurgeOlderThan deletes delivery rows sent before cutoff and reports how
// many were removed.
func (s *LogStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM message_log WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanDeliveries(rows pgx.Rows) ([]Delivery, error) {
	var out []Delivery
	for rows.Next() {
		var d Delivery
		var kind string
		if err := rows.Scan(&d.BroadcastID, &d.SenderID, &d.RecipientID,
			&d.SenderMsgID, &d.SentMsgID, &kind, &d.SentAt); err != nil {
			return nil, err
		}
		d.Kind = telegram.ContentKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
