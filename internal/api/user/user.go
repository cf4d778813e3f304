package user

import (
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserServiceInterface
}

func NewUserHandler(userService service.UserServiceInterface) *UserHandler {
	return &UserHandler{userService}
}

func (h *UserHandler) CreateAddress(c *gin.Context) {
	var address model.UserAddress
	if err := c.ShouldBindJSON(&address); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的地址数据", err))
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "未授权的访问"))
		return
	}

	address.ID = 0
	address.UserID = userID
	if err := h.userService.CreateAddress(c.Request.Context(), &address); err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleStatus(c, http.StatusCreated, address, "地址创建成功")
}

func (h *UserHandler) ListAddresses(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	addresses, err := h.userService.ListAddresses(c.Request.Context(), userID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if addresses == nil {
		addresses = []*model.UserAddress{}
	}
	errors.HandleSuccess(c, addresses, "")
}
