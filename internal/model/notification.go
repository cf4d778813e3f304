package model

import "time"

// NotificationTemplate 通知模板
type NotificationTemplate string

const (
	TemplatePaymentConfirmation NotificationTemplate = "payment_confirmation"
	TemplateOrderStatusUpdate   NotificationTemplate = "order_status_update"
	TemplatePaymentReminder     NotificationTemplate = "payment_reminder"
)

// Notification 通知事件，入队时即快照所需数据，投递时不再查库
type Notification struct {
	EventID          string               `json:"event_id"`
	Template         NotificationTemplate `json:"template"`
	OrderID          int                  `json:"order_id"`
	OrderNumber      string               `json:"order_number"`
	UserID           int                  `json:"user_id"`
	CustomerName     string               `json:"customer_name"`
	Email            string               `json:"email"`
	Phone            string               `json:"phone,omitempty"`
	Status           OrderStatus          `json:"status"`
	PreviousStatus   OrderStatus          `json:"previous_status,omitempty"`
	TotalAmount      float64              `json:"total_amount"`
	TrackingNumber   string               `json:"tracking_number,omitempty"`
	PaymentLink      string               `json:"payment_link,omitempty"`
	RemainingMinutes int                  `json:"remaining_minutes,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// EmailMessage 邮件
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// WhatsAppMessage WhatsApp 消息
type WhatsAppMessage struct {
	To   string
	Body string
}

// OutboxStatus 发件箱状态
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxMessage 通知发件箱记录，与订单变更在同一事务写入
type OutboxMessage struct {
	ID          int          `json:"id"`
	EventID     string       `json:"event_id"`
	OrderID     int          `json:"order_id"`
	Template    string       `json:"template"`
	Payload     []byte       `json:"-"`
	Status      OutboxStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"last_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
}
