package service

import (
	"context"
	"encoding/json"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmailSender 发送邮件
type EmailSender interface {
	Send(ctx context.Context, msg model.EmailMessage) error
}

// WhatsAppSender 发送 WhatsApp 消息
type WhatsAppSender interface {
	Send(ctx context.Context, msg model.WhatsAppMessage) error
}

// NotifyOptions 通知附加信息
type NotifyOptions struct {
	PreviousStatus   model.OrderStatus
	PaymentLink      string
	RemainingMinutes int
}

// Notifier 在当前事务中登记一条通知
type Notifier interface {
	Enqueue(ctx context.Context, order *model.Order, template model.NotificationTemplate, opts NotifyOptions)
}

// NotificationService 组装、登记并投递订单通知
type NotificationService struct {
	outbox    interfaces.OutboxRepository
	users     interfaces.UserRepository
	email     EmailSender
	whatsapp  WhatsAppSender
	storeName string
	siteURL   string
	now       func() time.Time
}

func NewNotificationService(
	outbox interfaces.OutboxRepository,
	users interfaces.UserRepository,
	email EmailSender,
	whatsapp WhatsAppSender,
	storeName, siteURL string,
) *NotificationService {
	return &NotificationService{
		outbox:    outbox,
		users:     users,
		email:     email,
		whatsapp:  whatsapp,
		storeName: storeName,
		siteURL:   strings.TrimRight(siteURL, "/"),
		now:       time.Now,
	}
}

// Build 根据订单快照生成通知
func (s *NotificationService) Build(ctx context.Context, order *model.Order, template model.NotificationTemplate, opts NotifyOptions) model.Notification {
	n := model.Notification{
		EventID:          uuid.NewString(),
		Template:         template,
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		CustomerName:     order.ShippingAddress.FullName,
		Phone:            order.ShippingAddress.Phone,
		Status:           order.Status,
		PreviousStatus:   opts.PreviousStatus,
		TotalAmount:      order.TotalAmount,
		TrackingNumber:   order.TrackingNumber,
		PaymentLink:      opts.PaymentLink,
		RemainingMinutes: opts.RemainingMinutes,
		CreatedAt:        s.now(),
	}

	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		util.Logger.Warn("查询通知收件人失败", zap.Error(err), zap.Int("user_id", order.UserID))
	}
	if user != nil {
		n.Email = user.Email
		if n.CustomerName == "" {
			n.CustomerName = user.Username
		}
		if n.Phone == "" {
			n.Phone = user.Phone
		}
	}
	return n
}

// Enqueue 写入通知发件箱，失败只记录日志
func (s *NotificationService) Enqueue(ctx context.Context, order *model.Order, template model.NotificationTemplate, opts NotifyOptions) {
	n := s.Build(ctx, order, template, opts)
	payload, err := json.Marshal(n)
	if err != nil {
		util.Logger.Error("序列化通知失败", zap.Error(err), zap.Int("order_id", order.ID))
		return
	}

	msg := &model.OutboxMessage{
		EventID:  n.EventID,
		OrderID:  order.ID,
		Template: string(template),
		Payload:  payload,
	}
	if err := s.outbox.Enqueue(ctx, msg); err != nil {
		util.Logger.Error("写入通知发件箱失败",
			zap.Error(err),
			zap.Int("order_id", order.ID),
			zap.String("template", string(template)))
		return
	}
	util.Logger.Debug("通知已登记",
		zap.Int("order_id", order.ID),
		zap.String("template", string(template)),
		zap.String("event_id", n.EventID))
}

// Dispatch 并发投递邮件和 WhatsApp，任一渠道失败即返回错误供上游重试
func (s *NotificationService) Dispatch(ctx context.Context, n model.Notification) error {
	email, wa, err := s.Compose(n)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if email.To != "" && s.email != nil {
		g.Go(func() error {
			if err := s.email.Send(gctx, email); err != nil {
				util.Logger.Error("发送通知邮件失败", zap.Error(err), zap.Int("order_id", n.OrderID))
				return fmt.Errorf("email: %w", err)
			}
			return nil
		})
	}
	if wa != nil && s.whatsapp != nil {
		g.Go(func() error {
			if err := s.whatsapp.Send(gctx, *wa); err != nil {
				util.Logger.Error("发送 WhatsApp 通知失败", zap.Error(err), zap.Int("order_id", n.OrderID))
				return fmt.Errorf("whatsapp: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Compose 渲染通知内容
func (s *NotificationService) Compose(n model.Notification) (model.EmailMessage, *model.WhatsAppMessage, error) {
	name := html.EscapeString(n.CustomerName)
	if name == "" {
		name = "there"
	}
	orderURL := fmt.Sprintf("%s/orders/%d", s.siteURL, n.OrderID)

	var subject, body, text string
	switch n.Template {
	case model.TemplatePaymentConfirmation:
		subject = fmt.Sprintf("Payment received for order %s", n.OrderNumber)
		body = fmt.Sprintf(`<p>Hi %s,</p>
<p>We have received your payment of <strong>%s</strong> for order <strong>%s</strong>. Your order is confirmed and will be packed shortly.</p>
<p><a href="%s">View your order</a></p>`, name, formatRupees(n.TotalAmount), n.OrderNumber, orderURL)
		text = fmt.Sprintf("%s: payment of %s received for order %s. Your order is confirmed.", s.storeName, formatRupees(n.TotalAmount), n.OrderNumber)

	case model.TemplateOrderStatusUpdate:
		subject = fmt.Sprintf("Order %s is %s", n.OrderNumber, statusLabel(n.Status))
		tracking := ""
		if n.TrackingNumber != "" {
			tracking = fmt.Sprintf("<p>Tracking number: <strong>%s</strong></p>", html.EscapeString(n.TrackingNumber))
		}
		body = fmt.Sprintf(`<p>Hi %s,</p>
<p>Your order <strong>%s</strong> is now <strong>%s</strong>.</p>%s
<p><a href="%s">View your order</a></p>`, name, n.OrderNumber, statusLabel(n.Status), tracking, orderURL)
		text = fmt.Sprintf("%s: order %s is now %s.", s.storeName, n.OrderNumber, statusLabel(n.Status))
		if n.TrackingNumber != "" {
			text += " Tracking: " + n.TrackingNumber
		}

	case model.TemplatePaymentReminder:
		link := n.PaymentLink
		if link == "" {
			link = orderURL
		}
		subject = fmt.Sprintf("Complete your payment for order %s", n.OrderNumber)
		body = fmt.Sprintf(`<p>Hi %s,</p>
<p>Your order <strong>%s</strong> of <strong>%s</strong> is waiting for payment. It will be cancelled automatically in %d minutes.</p>
<p><a href="%s">Pay now</a></p>`, name, n.OrderNumber, formatRupees(n.TotalAmount), n.RemainingMinutes, html.EscapeString(link))
		text = fmt.Sprintf("%s: order %s is awaiting payment of %s. Pay within %d minutes: %s",
			s.storeName, n.OrderNumber, formatRupees(n.TotalAmount), n.RemainingMinutes, link)

	default:
		return model.EmailMessage{}, nil, fmt.Errorf("unknown notification template %q", n.Template)
	}

	email := model.EmailMessage{
		To:      n.Email,
		Subject: fmt.Sprintf("[%s] %s", s.storeName, subject),
		HTML:    wrapEmail(s.storeName, body),
	}
	var wa *model.WhatsAppMessage
	if n.Phone != "" {
		wa = &model.WhatsAppMessage{To: n.Phone, Body: text}
	}
	return email, wa, nil
}

func wrapEmail(storeName, body string) string {
	return fmt.Sprintf(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>%s</h2>
%s
<p style="color:#888;font-size:12px">This is an automated message, please do not reply.</p>
</div>`, html.EscapeString(storeName), body)
}

func formatRupees(amount float64) string {
	return fmt.Sprintf("₹%.2f", amount)
}

func statusLabel(status model.OrderStatus) string {
	switch status {
	case model.OrderStatusPending:
		return "placed"
	case model.OrderStatusConfirmed:
		return "confirmed"
	case model.OrderStatusProcessing:
		return "being packed"
	case model.OrderStatusShipped:
		return "shipped"
	case model.OrderStatusDelivered:
		return "delivered"
	case model.OrderStatusCancelled:
		return "cancelled"
	}
	return string(status)
}
