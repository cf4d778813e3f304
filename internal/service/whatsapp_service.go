package service

import (
	"context"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"

	"go.uber.org/zap"
)

// WhatsAppService 暂未接入服务商，只记录将要发送的消息
type WhatsAppService struct {
	enabled bool
}

func NewWhatsAppService(enabled bool) *WhatsAppService {
	return &WhatsAppService{enabled: enabled}
}

func (s *WhatsAppService) Send(ctx context.Context, msg model.WhatsAppMessage) error {
	if !s.enabled {
		return nil
	}
	util.Logger.Info("WhatsApp 消息（仅记录）",
		zap.String("to", msg.To),
		zap.String("body", msg.Body))
	return nil
}
