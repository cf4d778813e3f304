package queue

import (
	"context"
	"encoding/json"
	"fashion-store-backend/internal/model"
	"fmt"
)

// Sink 发件箱消息的投递目标
type Sink interface {
	Publish(ctx context.Context, msg *model.OutboxMessage) error
}

// Dispatcher 实际发送通知
type Dispatcher interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// DirectSink 未配置 Kafka 时在进程内直接投递
type DirectSink struct {
	dispatcher Dispatcher
}

func NewDirectSink(d Dispatcher) *DirectSink {
	return &DirectSink{dispatcher: d}
}

func (s *DirectSink) Publish(ctx context.Context, msg *model.OutboxMessage) error {
	n, err := decode(msg.Payload)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, n)
}

func decode(payload []byte) (model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
