package admin

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

// AdminService 后台维护操作
type AdminService interface {
	GetSystemStats(ctx context.Context) (*model.SystemStats, error)
	ExpireOrders(ctx context.Context) (int, error)
	BackfillLoyalty(ctx context.Context, limit int) (int, error)
	ReconcileLoyalty(ctx context.Context, fix bool) ([]model.LoyaltyDrift, error)
	OutboxSummary(ctx context.Context) (map[model.OutboxStatus]int, error)
	RecordStockMovement(ctx context.Context, movement *model.StockMovement) error
}

var _ AdminService = (*service.AdminService)(nil)

// AdminHandler 按功能模块组织处理方法
type AdminHandler struct {
	adminService AdminService
	analytics    *errors.ErrorAnalytics
}

// NewAdminHandler 创建一个新的 AdminHandler 实例
func NewAdminHandler(adminService AdminService, analytics *errors.ErrorAnalytics) *AdminHandler {
	return &AdminHandler{adminService, analytics}
}

// 系统管理
func (h *AdminHandler) GetSystemStats(c *gin.Context) {
	stats, err := h.adminService.GetSystemStats(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, stats, "")
}

// GetErrorStats 最近的错误统计
func (h *AdminHandler) GetErrorStats(c *gin.Context) {
	errors.HandleSuccess(c, h.analytics.GetStats(), "")
}

// 订单维护
func (h *AdminHandler) ExpireOrders(c *gin.Context) {
	n, err := h.adminService.ExpireOrders(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	util.Logger.Info("手动清理超时订单", zap.Int("cancelled", n))
	errors.HandleSuccess(c, gin.H{"cancelled": n}, "超时订单已清理")
}

// 积分维护
func (h *AdminHandler) BackfillLoyalty(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	n, err := h.adminService.BackfillLoyalty(c.Request.Context(), limit)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"awarded": n}, "积分补发完成")
}

// ReconcileLoyalty 积分核对，只有 POST 且 fix=true 时修正账户，GET 仅报告
func (h *AdminHandler) ReconcileLoyalty(c *gin.Context) {
	fix := c.Request.Method == http.MethodPost && c.Query("fix") == "true"
	drifts, err := h.adminService.ReconcileLoyalty(c.Request.Context(), fix)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if drifts == nil {
		drifts = []model.LoyaltyDrift{}
	}
	errors.HandleSuccess(c, gin.H{"drifts": drifts, "fixed": fix}, "")
}

// 通知发件箱
func (h *AdminHandler) OutboxSummary(c *gin.Context) {
	counts, err := h.adminService.OutboxSummary(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, counts, "")
}

// 库存管理
func (h *AdminHandler) CreateStockMovement(c *gin.Context) {
	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		errors.HandleError(c, errors.New(errors.ErrValidation, "无效的商品ID"))
		return
	}

	var input struct {
		Type     model.StockMovementType `json:"type" binding:"required"`
		Quantity int                     `json:"quantity" binding:"required"`
		Note     string                  `json:"note"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}
	if !input.Type.Valid() {
		errors.HandleError(c, errors.New(errors.ErrValidation, "无效的库存变动类型"))
		return
	}

	adminID, _ := middleware.CurrentUserID(c)
	movement := &model.StockMovement{
		ProductID: productID,
		Type:      input.Type,
		Quantity:  input.Quantity,
		Note:      input.Note,
		CreatedBy: adminID,
	}
	if err := h.adminService.RecordStockMovement(c.Request.Context(), movement); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleStatus(c, http.StatusCreated, movement, "库存已调整")
}
