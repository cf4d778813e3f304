package service

import (
	"context"
	"crypto/tls"
	"fashion-store-backend/internal/common"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// EmailService 通过 SMTP 发送邮件
type EmailService struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
}

func NewEmailService(host string, port int, username, password, storeName string) *EmailService {
	from := username
	if storeName != "" && username != "" {
		from = fmt.Sprintf("%s <%s>", storeName, username)
	}
	return &EmailService{
		smtpHost: host,
		smtpPort: port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send 发送邮件，临时性网络错误最多重试 3 次
func (s *EmailService) Send(ctx context.Context, msg model.EmailMessage) error {
	if s.username == "" {
		return fmt.Errorf("SMTP 未配置")
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := mail.NewDialer(s.smtpHost, s.smtpPort, s.username, s.password)
	d.Timeout = 20 * time.Second
	d.SSL = s.smtpPort == 465
	d.TLSConfig = &tls.Config{ServerName: s.smtpHost}

	util.Logger.Info("开始发送邮件",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))

	err := common.WithRetry(ctx, func() error {
		return d.DialAndSend(m)
	}, 3, 2*time.Second)
	if err != nil {
		util.Logger.Error("发送邮件失败", zap.Error(err), zap.String("to", msg.To))
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	util.Logger.Info("邮件发送成功", zap.String("to", msg.To))
	return nil
}
