package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type outboxRepository struct {
	db DB
}

func NewOutboxRepository(db DB) interfaces.OutboxRepository {
	return &outboxRepository{db: db}
}

// Dispatch locks a batch of pending rows so concurrent relays of the same
// source skip them, hands them to fn in sequence order and marks the
// published prefix.
func (r *outboxRepository) Dispatch(ctx context.Context, source string, limit int, fn func(interfaces.OutboxEvent) error) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT seq, id, source, topic, key, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL AND ($1 = '' OR source = $1)
		ORDER BY seq
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, source, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}

	var seqs []int64
	var batch []interfaces.OutboxEvent
	for rows.Next() {
		var seq int64
		var e interfaces.OutboxEvent
		if err := rows.Scan(&seq, &e.ID, &e.Source, &e.Topic, &e.Key, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		seqs = append(seqs, seq)
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}

	sent := 0
	var publishErr error
	for _, e := range batch {
		if publishErr = fn(e); publishErr != nil {
			break
		}
		sent++
	}

	if sent > 0 {
		_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = $1 WHERE seq = ANY($2)`, time.Now().UTC(), seqs[:sent])
		if err != nil {
			return 0, fmt.Errorf("failed to mark outbox events published: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
		}
	}

	return sent, publishErr
}
