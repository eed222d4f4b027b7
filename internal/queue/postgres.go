package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/postgresql"
)

// Postgres is a Queue backed by the queue_messages and queue_archive tables.
// Reads use FOR UPDATE SKIP LOCKED so concurrent readers never share a message.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres creates a Postgres backed queue
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) SendBatch(ctx context.Context, queue string, payloads []domain.ItemMessage) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	return postgresql.Transact(ctx, p.db, func(tx *sqlx.Tx) ([]int64, error) {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO queue_messages (queue_name, message)
			VALUES ($1, $2)
			RETURNING msg_id
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare send: %w", err)
		}
		defer stmt.Close()

		ids := make([]int64, 0, len(payloads))
		for _, payload := range payloads {
			body, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to encode message: %w", err)
			}

			var id int64
			if err := stmt.GetContext(ctx, &id, queue, body); err != nil {
				return nil, fmt.Errorf("failed to send message: %w", err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
}

func (p *Postgres) Read(ctx context.Context, queue string, vt time.Duration, limit int) ([]Message, error) {
	query := `
		WITH claimed AS (
			SELECT msg_id
			FROM queue_messages
			WHERE queue_name = $1 AND vt <= now()
			ORDER BY msg_id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET vt = now() + make_interval(secs => $2),
		    read_ct = m.read_ct + 1
		FROM claimed
		WHERE m.msg_id = claimed.msg_id
		RETURNING m.msg_id, m.read_ct, m.enqueued_at, m.vt, m.message
	`

	var messages []Message
	if err := p.db.SelectContext(ctx, &messages, query, queue, vt.Seconds(), limit); err != nil {
		return nil, fmt.Errorf("failed to read queue %s: %w", queue, err)
	}
	return messages, nil
}

func (p *Postgres) Delete(ctx context.Context, queue string, id int64) (bool, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE queue_name = $1 AND msg_id = $2`, queue, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete message %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (p *Postgres) SetVisibilityTimeout(ctx context.Context, queue string, id int64, vt time.Duration) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET vt = now() + make_interval(secs => $3)
		WHERE queue_name = $1 AND msg_id = $2
	`, queue, id, vt.Seconds())
	if err != nil {
		return fmt.Errorf("failed to set visibility timeout of message %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) Archive(ctx context.Context, queue string, id int64) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		WITH moved AS (
			DELETE FROM queue_messages
			WHERE queue_name = $1 AND msg_id = $2
			RETURNING msg_id, queue_name, read_ct, enqueued_at, vt, message
		)
		INSERT INTO queue_archive (msg_id, queue_name, read_ct, enqueued_at, vt, message)
		SELECT msg_id, queue_name, read_ct, enqueued_at, vt, message FROM moved
	`, queue, id)
	if err != nil {
		return false, fmt.Errorf("failed to archive message %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (p *Postgres) Size(ctx context.Context, queue string) (Size, error) {
	var size Size
	err := p.db.GetContext(ctx, &size, `
		SELECT
			count(*) FILTER (WHERE vt <= now()) AS ready,
			count(*) FILTER (WHERE vt > now()) AS in_flight,
			count(*) AS total,
			(SELECT count(*) FROM queue_archive WHERE queue_name = $1) AS archived
		FROM queue_messages
		WHERE queue_name = $1
	`, queue)
	if err != nil {
		return Size{}, fmt.Errorf("failed to size queue %s: %w", queue, err)
	}
	return size, nil
}

func (p *Postgres) PurgeRequest(ctx context.Context, queue string, requestID string) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM queue_messages
		WHERE queue_name = $1 AND message->>'requestId' = $2
	`, queue, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge request %s: %w", requestID, err)
	}
	return result.RowsAffected()
}
