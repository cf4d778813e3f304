package middleware

import (
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminMiddleware 确保只有管理员可以访问某些路由，需挂在 AuthMiddleware 之后
func AdminMiddleware(userService service.UserServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := CurrentUserID(c)
		if !ok {
			util.Logger.Warn("用户ID不存在", zap.String("path", c.Request.URL.Path))
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "需要认证"))
			c.Abort()
			return
		}

		user, err := userService.GetUserByID(c.Request.Context(), userID)
		if err != nil || !user.IsAdmin() {
			util.Logger.Warn("非管理员访问",
				zap.Int("user_id", userID),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			errors.HandleError(c, errors.New(errors.ErrForbidden, "需要管理员权限"))
			c.Abort()
			return
		}

		c.Set("is_admin", true)
		util.Logger.Debug("管理员验证通过", zap.Int("user_id", userID))
		c.Next()
	}
}
