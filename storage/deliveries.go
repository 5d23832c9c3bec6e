package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// DeliveryStore persists the WebhookDelivery idempotency log (I4).
type DeliveryStore struct{ db *DB }

func NewDeliveryStore(db *DB) *DeliveryStore { return &DeliveryStore{db: db} }

// InsertIfAbsent performs `INSERT ... ON CONFLICT DO NOTHING` (§4.6 step 5).
// It reports whether a row was actually inserted: false means this
// deliveryID has already been processed (I4), and the caller should
// short-circuit with a "duplicate" response.
func (s *DeliveryStore) InsertIfAbsent(ctx context.Context, tx *sqlx.Tx, deliveryID, repo, branch, commitSHA string) (bool, error) {
	const q = `
		INSERT INTO webhook_deliveries (delivery_id, repo, branch, commit_sha)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (delivery_id) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, q, deliveryID, repo, branch, commitSHA)
	if err != nil {
		return false, errors.Wrap(err, "insert delivery")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// RecordDuration updates the delivery log row with elapsed processing time (§4.6 step 10).
func (s *DeliveryStore) RecordDuration(ctx context.Context, tx *sqlx.Tx, deliveryID string, durationMs int64) error {
	const q = `UPDATE webhook_deliveries SET duration_ms = $2 WHERE delivery_id = $1`
	if _, err := tx.ExecContext(ctx, q, deliveryID, durationMs); err != nil {
		return errors.Wrap(err, "record delivery duration")
	}
	return nil
}
