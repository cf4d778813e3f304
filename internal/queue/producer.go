package queue

import (
	"context"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 将发件箱消息写入 Kafka，同一订单的消息落在同一分区以保持顺序
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{writer: w, topic: topic}
}

// Publish 发布一条发件箱消息
func (p *Producer) Publish(ctx context.Context, msg *model.OutboxMessage) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(msg.OrderID)),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.EventID)},
			{Key: "template", Value: []byte(msg.Template)},
		},
	})
	if err != nil {
		return fmt.Errorf("write notification to %s: %w", p.topic, err)
	}
	util.Logger.Debug("通知已写入 Kafka",
		zap.String("topic", p.topic),
		zap.String("event_id", msg.EventID),
		zap.Int("order_id", msg.OrderID))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
