package model

import "time"

// OrderStatus 订单履约状态
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid 是否为已知状态
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal 终态不再接受任何状态变更
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus 支付状态，与履约状态相互独立
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// ShippingAddress 下单时的收货地址快照，之后不再读取地址表
type ShippingAddress struct {
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required,phone"`
	Line1    string `json:"line1" binding:"required"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state" binding:"required"`
	Pincode  string `json:"pincode" binding:"required,pincode"`
	Country  string `json:"country,omitempty"`
}

// Order 订单模型
type Order struct {
	ID                  int             `json:"id"`
	OrderNumber         string          `json:"order_number"`
	UserID              int             `json:"user_id"`
	Status              OrderStatus     `json:"status"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	Subtotal            float64         `json:"subtotal"`
	DeliveryFee         float64         `json:"delivery_fee"`
	TotalAmount         float64         `json:"total_amount"`
	ShippingAddress     ShippingAddress `json:"shipping_address"`
	RazorpayOrderID     string          `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID   string          `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature   string          `json:"-"`
	TrackingNumber      string          `json:"tracking_number,omitempty"`
	UserNotes           string          `json:"user_notes,omitempty"`
	AdminNotes          string          `json:"admin_notes,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	InvoiceURL          string          `json:"invoice_url,omitempty"`
	InventoryAdjustedAt *time.Time      `json:"inventory_adjusted_at,omitempty"`
	InventoryRestoredAt *time.Time      `json:"inventory_restored_at,omitempty"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	Items               []OrderItem     `json:"items,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PaymentDeadline 在线支付截止时间
func (o *Order) PaymentDeadline(window time.Duration) time.Time {
	return o.CreatedAt.Add(window)
}

// AwaitingPayment 在线支付且尚未付款的待处理订单
func (o *Order) AwaitingPayment() bool {
	return o.Status == OrderStatusPending &&
		o.PaymentMethod == PaymentMethodOnline &&
		o.PaymentStatus != PaymentStatusPaid
}

// OrderItem 订单明细，价格为下单时快照
type OrderItem struct {
	ID          int     `json:"id"`
	OrderID     int     `json:"order_id"`
	ProductID   int     `json:"product_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

// OrderPatch 管理员部分更新，nil 字段保持不变
type OrderPatch struct {
	Status            *OrderStatus   `json:"status"`
	PaymentStatus     *PaymentStatus `json:"payment_status"`
	TrackingNumber    *string        `json:"tracking_number"`
	AdminNotes        *string        `json:"admin_notes"`
	UserNotes         *string        `json:"user_notes"`
	RazorpayOrderID   *string        `json:"razorpay_order_id"`
	RazorpayPaymentID *string        `json:"razorpay_payment_id"`
	RazorpaySignature *string        `json:"razorpay_signature"`
}

// OrderFilter 管理员订单查询条件
type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	UserID        int
	Page          int
	PageSize      int
}

// OrderStats 订单统计
type OrderStats struct {
	ByStatus    map[OrderStatus]int `json:"by_status"`
	TotalOrders int                 `json:"total_orders"`
	PaidRevenue float64             `json:"paid_revenue"`
}
