package interfaces

import (
	"context"
	"fashion-store-backend/internal/model"
	"time"
)

// OutboxRepository 通知发件箱
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg *model.OutboxMessage) error
	FetchPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkPublished(ctx context.Context, id int, at time.Time) error
	// MarkFailed 记录失败并累加尝试次数，达到 maxAttempts 后置为 failed
	MarkFailed(ctx context.Context, id int, lastErr string, maxAttempts int) error
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int, error)
}
