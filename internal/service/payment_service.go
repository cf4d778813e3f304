package service

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/gateway"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PaymentServiceDeps 支付服务依赖
type PaymentServiceDeps struct {
	Orders      interfaces.OrderRepository
	UnitOfWork  interfaces.UnitOfWork
	OrderFlow   *OrderService
	Loyalty     *LoyaltyService
	Notifier    Notifier
	Gateway     gateway.Gateway
	Verifier    *gateway.SignatureVerifier
	Currency    string
	FrontendURL string
	Clock       func() time.Time
}

// PaymentOrder 前端拉起支付所需信息
type PaymentOrder struct {
	OrderID        int       `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	GatewayOrderID string    `json:"razorpay_order_id"`
	AmountMinor    int64     `json:"amount"`
	Currency       string    `json:"currency"`
	KeyID          string    `json:"key_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// VerifyPaymentInput 支付回调参数
type VerifyPaymentInput struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// VerifyResult 验签结果
type VerifyResult struct {
	OrderID          int               `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	PaymentID        string            `json:"payment_id"`
	Status           model.OrderStatus `json:"status"`
	AlreadyProcessed bool              `json:"already_processed"`
	PointsAwarded    int               `json:"points_awarded"`
}

// ReminderResult 付款提醒结果，超时时订单被取消且不返回支付链接
type ReminderResult struct {
	OrderID          int        `json:"order_id"`
	Cancelled        bool       `json:"cancelled"`
	GatewayOrderID   string     `json:"razorpay_order_id,omitempty"`
	PaymentLink      string     `json:"payment_link,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type PaymentService struct {
	orders      interfaces.OrderRepository
	uow         interfaces.UnitOfWork
	flow        *OrderService
	loyalty     *LoyaltyService
	notifier    Notifier
	gateway     gateway.Gateway
	verifier    *gateway.SignatureVerifier
	currency    string
	frontendURL string
	now         func() time.Time
}

func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := deps.Currency
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{
		orders:      deps.Orders,
		uow:         deps.UnitOfWork,
		flow:        deps.OrderFlow,
		loyalty:     deps.Loyalty,
		notifier:    deps.Notifier,
		gateway:     deps.Gateway,
		verifier:    deps.Verifier,
		currency:    currency,
		frontendURL: strings.TrimRight(deps.FrontendURL, "/"),
		now:         clock,
	}
}

// loadPayableOrder 读取待付款订单，超时订单会被取消并返回错误
func (s *PaymentService) loadPayableOrder(ctx context.Context, viewer Viewer, orderID int) (*model.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
	}
	if order == nil || !viewer.canSee(order) {
		return nil, errors.New(errors.ErrOrderNotFound, "订单不存在")
	}
	if order.PaymentStatus == model.PaymentStatusPaid {
		return nil, errors.New(errors.ErrResourceConflict, "订单已支付")
	}
	if order.PaymentMethod != model.PaymentMethodOnline {
		return nil, errors.New(errors.ErrBadRequest, "货到付款订单无需在线支付")
	}
	if order.Status != model.OrderStatusPending {
		return nil, errors.New(errors.ErrOrderClosed, "订单已关闭")
	}
	return order, nil
}

// CreatePaymentOrder 为待付款订单创建网关订单，已有网关订单时直接复用
func (s *PaymentService) CreatePaymentOrder(ctx context.Context, viewer Viewer, orderID int) (*PaymentOrder, error) {
	order, err := s.loadPayableOrder(ctx, viewer, orderID)
	if err != nil {
		return nil, err
	}
	if s.flow.paymentExpired(order) {
		if _, err := s.flow.ExpireOrder(ctx, order.ID); err != nil {
			util.Logger.Error("取消超时订单失败", zap.Error(err), zap.Int("order_id", order.ID))
		}
		return nil, errors.New(errors.ErrPaymentWindowExpired, "订单已超过付款时限")
	}

	gatewayOrderID, err := s.ensureGatewayOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	return &PaymentOrder{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		GatewayOrderID: gatewayOrderID,
		AmountMinor:    gateway.ToMinorUnits(order.TotalAmount),
		Currency:       s.currency,
		KeyID:          s.gateway.KeyID(),
		ExpiresAt:      order.PaymentDeadline(s.flow.PaymentWindow()),
	}, nil
}

// ensureGatewayOrder 订单只对应一个网关订单，保证之前发出的支付链接仍能验签
func (s *PaymentService) ensureGatewayOrder(ctx context.Context, order *model.Order) (string, error) {
	if order.RazorpayOrderID != "" {
		return order.RazorpayOrderID, nil
	}

	created, err := s.gateway.CreateOrder(ctx, gateway.ToMinorUnits(order.TotalAmount), s.currency, order.OrderNumber)
	if err != nil {
		return "", errors.Wrap(errors.ErrUpstream, "创建支付订单失败", err)
	}

	gatewayOrderID := created.ID
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.orders.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return errors.New(errors.ErrOrderNotFound, "订单不存在")
		}
		if locked.RazorpayOrderID != "" {
			// 并发请求已写入，放弃本次创建的网关订单
			gatewayOrderID = locked.RazorpayOrderID
			return nil
		}
		locked.RazorpayOrderID = created.ID
		return s.orders.UpdateOrder(ctx, locked)
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrDatabase, "保存支付订单失败", err)
	}

	order.RazorpayOrderID = gatewayOrderID
	util.Logger.Info("支付订单已关联",
		zap.Int("order_id", order.ID),
		zap.String("gateway_order_id", gatewayOrderID))
	return gatewayOrderID, nil
}

// VerifyPayment 校验支付回调并确认订单
// 先验签再按网关订单号查单，重复回调返回成功但不重复执行副作用
func (s *PaymentService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*VerifyResult, error) {
	if !s.verifier.Verify(in.RazorpayOrderID, in.RazorpayPaymentID, in.RazorpaySignature) {
		util.Logger.Warn("支付签名校验失败",
			zap.String("gateway_order_id", in.RazorpayOrderID),
			zap.String("payment_id", in.RazorpayPaymentID))
		return nil, errors.New(errors.ErrSignatureMismatch, "支付签名无效")
	}

	var (
		result = &VerifyResult{PaymentID: in.RazorpayPaymentID}
		order  *model.Order
		after  []SideEffect
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrderByGatewayOrderID(ctx, in.RazorpayOrderID, true)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
		}
		if order == nil {
			return errors.New(errors.ErrOrderNotFound, "订单不存在")
		}

		if order.PaymentStatus == model.PaymentStatusPaid {
			if order.RazorpayPaymentID != in.RazorpayPaymentID {
				util.Logger.Warn("订单已用其他支付完成",
					zap.Int("order_id", order.ID),
					zap.String("paid_with", order.RazorpayPaymentID),
					zap.String("payment_id", in.RazorpayPaymentID))
			}
			result.AlreadyProcessed = true
			result.PaymentID = order.RazorpayPaymentID
			return nil
		}
		if order.Status != model.OrderStatusPending {
			util.Logger.Error("订单已关闭但收到付款，需人工退款",
				zap.Int("order_id", order.ID),
				zap.String("status", string(order.Status)),
				zap.String("payment_id", in.RazorpayPaymentID))
			return errors.New(errors.ErrOrderClosed, "订单已关闭，款项将退回")
		}

		now := s.now()
		order.PaymentStatus = model.PaymentStatusPaid
		order.PaidAt = &now
		order.RazorpayPaymentID = in.RazorpayPaymentID
		order.RazorpaySignature = in.RazorpaySignature

		after, err = s.flow.Transition(ctx, order, model.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return errors.Wrap(errors.ErrDatabase, "更新订单失败", err)
		}
		s.notifier.Enqueue(ctx, order, model.TemplatePaymentConfirmation,
			NotifyOptions{PreviousStatus: model.OrderStatusPending})
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.OrderID = order.ID
	result.OrderNumber = order.OrderNumber
	result.Status = order.Status
	if result.AlreadyProcessed {
		util.Logger.Info("重复的支付回调", zap.Int("order_id", order.ID))
		return result, nil
	}

	// 积分与发票不影响支付结果
	points, err := s.loyalty.AwardForOrder(ctx, order)
	if err != nil {
		util.Logger.Error("发放积分失败，等待补发", zap.Error(err), zap.Int("order_id", order.ID))
	}
	result.PointsAwarded = points
	s.flow.RunAfterCommit(ctx, order, after)

	util.Logger.Info("支付验证成功",
		zap.Int("order_id", order.ID),
		zap.String("payment_id", in.RazorpayPaymentID),
		zap.Int("points", points))
	return result, nil
}

// SendPaymentReminder 在付款时限内重新发送支付链接，超时则取消订单
func (s *PaymentService) SendPaymentReminder(ctx context.Context, viewer Viewer, orderID int) (*ReminderResult, error) {
	order, err := s.loadPayableOrder(ctx, viewer, orderID)
	if err != nil {
		return nil, err
	}

	deadline := order.PaymentDeadline(s.flow.PaymentWindow())
	remaining := deadline.Sub(s.now())
	if remaining <= 0 {
		expired, err := s.flow.ExpireOrder(ctx, order.ID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "取消超时订单失败", err)
		}
		if expired == nil {
			return nil, errors.New(errors.ErrOrderClosed, "订单状态已变化")
		}
		return &ReminderResult{OrderID: order.ID, Cancelled: true}, nil
	}

	gatewayOrderID, err := s.ensureGatewayOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/orders/%d/pay?razorpay_order_id=%s", s.frontendURL, order.ID, gatewayOrderID)
	s.notifier.Enqueue(ctx, order, model.TemplatePaymentReminder, NotifyOptions{
		PaymentLink:      link,
		RemainingMinutes: int(math.Ceil(remaining.Minutes())),
	})

	util.Logger.Info("已发送付款提醒",
		zap.Int("order_id", order.ID),
		zap.Duration("remaining", remaining))
	return &ReminderResult{
		OrderID:          order.ID,
		GatewayOrderID:   gatewayOrderID,
		PaymentLink:      link,
		RemainingSeconds: int(remaining.Seconds()),
		ExpiresAt:        &deadline,
	}, nil
}
