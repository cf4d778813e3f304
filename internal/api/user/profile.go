package user

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoyaltyService 积分相关依赖
type LoyaltyService interface {
	GetSummary(ctx context.Context, userID int) (*service.LoyaltySummary, error)
	Redeem(ctx context.Context, userID, points int, orderID *int) (*model.LoyaltyAccount, error)
}

var _ LoyaltyService = (*service.LoyaltyService)(nil)

type ProfileHandler struct {
	userService    service.UserServiceInterface
	loyaltyService LoyaltyService
}

func NewProfileHandler(userService service.UserServiceInterface, loyaltyService LoyaltyService) *ProfileHandler {
	return &ProfileHandler{userService, loyaltyService}
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		util.Logger.Error("获取用户资料失败", zap.Error(err), zap.Int("user_id", userID))
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{
		"user": user,
	}, "")
}

// GetLoyalty 积分账户与最近流水
func (h *ProfileHandler) GetLoyalty(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	summary, err := h.loyaltyService.GetSummary(c.Request.Context(), userID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, summary, "")
}

// RedeemPoints 使用积分
func (h *ProfileHandler) RedeemPoints(c *gin.Context) {
	var input struct {
		Points  int  `json:"points" binding:"required,min=1"`
		OrderID *int `json:"order_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	account, err := h.loyaltyService.Redeem(c.Request.Context(), userID, input.Points, input.OrderID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	util.Logger.Info("积分已使用", zap.Int("user_id", userID), zap.Int("points", input.Points))
	errors.HandleSuccess(c, account, "积分使用成功")
}
