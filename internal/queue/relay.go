package queue

import (
	"context"
	"fashion-store-backend/internal/common"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRelayBatch       = 50
	DefaultRelayMaxAttempts = 5
)

// Relay 轮询通知发件箱并转发到 Sink
// 发布成功后才标记 published，进程崩溃时消息会被再次投递
type Relay struct {
	outbox      interfaces.OutboxRepository
	sink        Sink
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewRelay(outbox interfaces.OutboxRepository, sink Sink, batchSize, maxAttempts int) *Relay {
	if batchSize <= 0 {
		batchSize = DefaultRelayBatch
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultRelayMaxAttempts
	}
	return &Relay{
		outbox:      outbox,
		sink:        sink,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// RunOnce 处理一批待投递消息，返回成功发布的条数
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}

		err := common.WithRetry(ctx, func() error {
			return r.sink.Publish(ctx, msg)
		}, 3, 200*time.Millisecond)
		if err != nil {
			util.Logger.Warn("通知投递失败",
				zap.Error(err),
				zap.Int("outbox_id", msg.ID),
				zap.String("event_id", msg.EventID),
				zap.Int("attempts", msg.Attempts+1))
			if markErr := r.outbox.MarkFailed(ctx, msg.ID, err.Error(), r.maxAttempts); markErr != nil {
				util.Logger.Error("记录投递失败出错", zap.Error(markErr), zap.Int("outbox_id", msg.ID))
			}
			if msg.Attempts+1 >= r.maxAttempts {
				util.Logger.Error("通知超过最大重试次数，已停止投递",
					zap.Int("outbox_id", msg.ID),
					zap.Int("order_id", msg.OrderID),
					zap.String("template", msg.Template))
			}
			continue
		}

		if err := r.outbox.MarkPublished(ctx, msg.ID, r.now()); err != nil {
			util.Logger.Error("标记通知已投递失败", zap.Error(err), zap.Int("outbox_id", msg.ID))
			continue
		}
		published++
	}
	return published, nil
}

// Run 按间隔循环投递，直到 ctx 取消
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	util.Logger.Info("通知转发已启动", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			util.Logger.Info("通知转发已停止")
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				util.Logger.Error("通知转发失败", zap.Error(err))
				continue
			}
			if n > 0 {
				util.Logger.Info("通知已转发", zap.Int("count", n))
			}
		}
	}
}
