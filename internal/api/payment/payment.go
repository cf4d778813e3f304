package payment

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentService 支付处理器依赖的服务
type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, viewer service.Viewer, orderID int) (*service.PaymentOrder, error)
	VerifyPayment(ctx context.Context, in service.VerifyPaymentInput) (*service.VerifyResult, error)
	SendPaymentReminder(ctx context.Context, viewer service.Viewer, orderID int) (*service.ReminderResult, error)
}

var _ PaymentService = (*service.PaymentService)(nil)

type PaymentHandler struct {
	paymentService PaymentService
}

func NewPaymentHandler(paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService}
}

type orderRequest struct {
	OrderID int `json:"order_id" binding:"required,min=1"`
}

func viewer(c *gin.Context) service.Viewer {
	userID, _ := middleware.CurrentUserID(c)
	return service.Viewer{UserID: userID, IsAdmin: middleware.IsAdmin(c)}
}

// CreatePaymentOrder 为待付款订单创建网关订单
func (h *PaymentHandler) CreatePaymentOrder(c *gin.Context) {
	var input orderRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	po, err := h.paymentService.CreatePaymentOrder(c.Request.Context(), viewer(c), input.OrderID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, po, "支付订单已创建")
}

// VerifyPayment 处理网关支付回调
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var input service.VerifyPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		util.Logger.Warn("支付回调参数不完整", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "缺少支付回调参数", err))
		return
	}

	result, err := h.paymentService.VerifyPayment(c.Request.Context(), input)
	if err != nil {
		util.Logger.Warn("支付验证失败",
			zap.Error(err),
			zap.String("razorpay_order_id", input.RazorpayOrderID),
			zap.String("razorpay_payment_id", input.RazorpayPaymentID))
		errors.HandleError(c, err)
		return
	}

	msg := "支付验证成功"
	if result.AlreadyProcessed {
		msg = "支付已处理"
	}
	errors.HandleSuccess(c, result, msg)
}

// SendPaymentReminder 重新下发支付链接，超时则取消订单
func (h *PaymentHandler) SendPaymentReminder(c *gin.Context) {
	var input orderRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	result, err := h.paymentService.SendPaymentReminder(c.Request.Context(), viewer(c), input.OrderID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	msg := "付款提醒已发送"
	if result.Cancelled {
		msg = "付款已超时，订单已取消"
	}
	errors.HandleSuccess(c, result, msg)
}
