package order

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderService 订单处理器依赖的服务
type OrderService interface {
	CreateOrder(ctx context.Context, userID int, in service.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, viewer service.Viewer, id int) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID, page, pageSize int) ([]*model.Order, int, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int, error)
	UpdateOrder(ctx context.Context, id int, patch model.OrderPatch, adminID int) (*model.Order, error)
	CancelOrder(ctx context.Context, userID, id int, reason string) (*model.Order, error)
}

var _ OrderService = (*service.OrderService)(nil)

// OrderHandler 处理订单相关的HTTP请求
type OrderHandler struct {
	orderService OrderService
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService}
}

func viewer(c *gin.Context) service.Viewer {
	userID, _ := middleware.CurrentUserID(c)
	return service.Viewer{UserID: userID, IsAdmin: middleware.IsAdmin(c)}
}

func orderID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		errors.HandleError(c, errors.New(errors.ErrValidation, "无效的订单ID"))
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func paged(orders []*model.Order, total, page, pageSize int) gin.H {
	if orders == nil {
		orders = []*model.Order{}
	}
	return gin.H{
		"orders": orders,
		"pagination": gin.H{
			"current_page": page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  (total + pageSize - 1) / pageSize,
		},
	}
}

// CreateOrder 下单
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "未授权的访问"))
		return
	}

	var input service.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		util.Logger.Warn("下单失败，无效的请求数据", zap.Error(err), zap.Int("user_id", userID))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}
	input.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.orderService.CreateOrder(c.Request.Context(), userID, input)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleStatus(c, http.StatusCreated, order, "订单创建成功")
}

// GetOrder 查看订单详情
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), viewer(c), id)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, order, "")
}

// ListMyOrders 当前用户的订单
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	page, pageSize := pagination(c)

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, paged(orders, total, page, pageSize), "")
}

// ListOrders 管理员按条件查询订单
func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := model.OrderFilter{
		Status:        model.OrderStatus(c.Query("status")),
		PaymentStatus: model.PaymentStatus(c.Query("payment_status")),
		Page:          page,
		PageSize:      pageSize,
	}
	if uid := c.Query("user_id"); uid != "" {
		id, err := strconv.Atoi(uid)
		if err != nil {
			errors.HandleError(c, errors.New(errors.ErrValidation, "无效的用户ID"))
			return
		}
		filter.UserID = id
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, paged(orders, total, page, pageSize), "")
}

// UpdateOrder 管理员部分更新订单
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var patch model.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	adminID, _ := middleware.CurrentUserID(c)
	order, err := h.orderService.UpdateOrder(c.Request.Context(), id, patch, adminID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, order, "订单已更新")
}

// CancelOrder 用户取消订单
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	// 请求体可为空
	_ = c.ShouldBindJSON(&input)

	userID, _ := middleware.CurrentUserID(c)
	order, err := h.orderService.CancelOrder(c.Request.Context(), userID, id, input.Reason)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, order, "订单已取消")
}
