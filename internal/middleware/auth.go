package middleware

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// bearerToken 取出 Authorization 头中的令牌
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New(errors.ErrUnauthorized, "需要认证")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") || parts[1] == "" {
		return "", errors.New(errors.ErrUnauthorized, "无效的认证格式")
	}
	return parts[1], nil
}

func AuthMiddleware(userService service.UserServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		util.Logger.Debug("进入认证中间件",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		token, err := bearerToken(c)
		if err != nil {
			errors.HandleError(c, err)
			c.Abort()
			return
		}

		if userService.IsTokenBlacklisted(ctx, token) {
			errors.HandleError(c, errors.New(errors.ErrInvalidToken, "令牌已被撤销"))
			c.Abort()
			return
		}

		userID, err := util.ValidateToken(token)
		if err != nil {
			errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "无效或过期的令牌", err))
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("token", token)

		select {
		case <-ctx.Done():
			errors.HandleError(c, errors.New(errors.ErrTimeout, "请求超时"))
			c.Abort()
			return
		default:
			c.Next()
		}
	}
}

// OptionalAuthMiddleware 携带有效令牌时写入 user_id，否则按匿名请求放行
func OptionalAuthMiddleware(userService service.UserServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == nil && !userService.IsTokenBlacklisted(c.Request.Context(), token) {
			if userID, err := util.ValidateToken(token); err == nil {
				c.Set("user_id", userID)
			}
		}
		c.Next()
	}
}

// CurrentUserID 返回认证中间件写入的用户 ID
func CurrentUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok && id > 0
}

// IsAdmin 管理员中间件是否已放行
func IsAdmin(c *gin.Context) bool {
	return c.GetBool("is_admin")
}
