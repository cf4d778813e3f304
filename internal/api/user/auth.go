package user

import (
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler 处理与认证相关的HTTP请求
type AuthHandler struct {
	userService service.UserServiceInterface
}

// NewAuthHandler 创建一个新的 AuthHandler 实例
func NewAuthHandler(userService service.UserServiceInterface) *AuthHandler {
	return &AuthHandler{userService}
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var registerData struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&registerData); err != nil {
		util.Logger.Warn("注册失败，无效的请求数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	user := &model.User{
		Username:     registerData.Username,
		Email:        registerData.Email,
		Phone:        registerData.Phone,
		PasswordHash: registerData.Password,
	}

	if err := h.userService.Register(c.Request.Context(), user); err != nil {
		if errors.Is(err, errors.ErrUserExists) {
			util.Logger.Warn("注册失败，邮箱已存在", zap.String("email", user.Email))
		}
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{
		"user_id": user.ID,
	}, "注册成功")
}

// Login 处理用户登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var loginData struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&loginData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	user, err := h.userService.Login(c.Request.Context(), loginData.Email, loginData.Password)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	token, err := util.GenerateToken(user.ID)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrInternal, "生成令牌失败", err))
		return
	}

	errors.HandleSuccess(c, gin.H{
		"token": token,
		"user":  user,
	}, "登录成功")
}

// Logout 注销当前令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString("token")
	if err := h.userService.Logout(c.Request.Context(), token); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, nil, "已成功登出")
}
