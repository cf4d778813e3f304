package queue

import (
	"context"
	"errors"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/util"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const sentMarkerTTL = 7 * 24 * time.Hour

// messageReader kafka.Reader 的最小接口
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费通知主题并投递，cache 非空时按 event_id 去重
type Consumer struct {
	reader      messageReader
	dispatcher  Dispatcher
	cache       cache.Cache
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, d Dispatcher, c cache.Cache) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 1e6,
	})
	return &Consumer{
		reader:      r,
		dispatcher:  d,
		cache:       c,
		maxAttempts: DefaultRelayMaxAttempts,
		backoff:     time.Second,
	}
}

// Run 阻塞消费，ctx 取消或读取出错时返回
// 单条消息最多投递 maxAttempts 次，仍失败则记录并提交位移，避免阻塞分区
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.handleWithRetry(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.Logger.Error("通知多次投递失败，已放弃",
				zap.Error(err),
				zap.String("key", string(m.Key)),
				zap.Int64("offset", m.Offset))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) error {
	var err error
	for i := 0; i < c.maxAttempts; i++ {
		if err = c.handle(ctx, m); err == nil {
			return nil
		}
		util.Logger.Warn("通知投递失败，稍后重试",
			zap.Error(err),
			zap.Int("attempt", i+1),
			zap.Int64("offset", m.Offset))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(i+1)):
		}
	}
	return err
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	n, err := decode(m.Value)
	if err != nil {
		// 无法解析的消息直接跳过
		util.Logger.Error("丢弃无法解析的通知", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}

	if c.cache != nil && n.EventID != "" {
		if _, err := c.cache.Get(ctx, cache.NotificationSentKey(n.EventID)); err == nil {
			util.Logger.Debug("通知已投递过，跳过", zap.String("event_id", n.EventID))
			return nil
		}
	}

	if err := c.dispatcher.Dispatch(ctx, n); err != nil {
		return err
	}

	if c.cache != nil && n.EventID != "" {
		if err := c.cache.Set(ctx, cache.NotificationSentKey(n.EventID), "1", sentMarkerTTL); err != nil {
			util.Logger.Warn("记录通知投递标记失败", zap.Error(err), zap.String("event_id", n.EventID))
		}
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
