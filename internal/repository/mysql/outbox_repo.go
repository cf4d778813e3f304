package mysql

import (
	"context"
	"database/sql"
	"fashion-store-backend/internal/model"
	"fmt"
	"time"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg *model.OutboxMessage) error {
	msg.Status = model.OutboxPending
	msg.CreatedAt = time.Now()
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notification_outbox (event_id, order_id, template, payload, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		msg.EventID, msg.OrderID, msg.Template, msg.Payload, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get outbox message ID: %w", err)
	}
	msg.ID = int(id)
	return nil
}

// FetchPending 按写入顺序取待投递消息
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, event_id, order_id, template, payload, status, attempts, last_error, created_at, published_at
		FROM notification_outbox WHERE status = ? ORDER BY id LIMIT ?`, model.OutboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.OutboxMessage
	for rows.Next() {
		var (
			m           model.OutboxMessage
			lastErr     sql.NullString
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.OrderID, &m.Template, &m.Payload, &m.Status,
			&m.Attempts, &lastErr, &m.CreatedAt, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		m.LastError = lastErr.String
		if publishedAt.Valid {
			m.PublishedAt = &publishedAt.Time
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int, at time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, published_at = ?, attempts = attempts + 1 WHERE id = ?`,
		model.OutboxPublished, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int, lastErr string, maxAttempts int) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1, last_error = ?,
			status = CASE WHEN attempts >= ? THEN ? ELSE status END
		WHERE id = ?`,
		lastErr, maxAttempts, model.OutboxFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.OutboxStatus]int)
	for rows.Next() {
		var status model.OutboxStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outbox counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
