package middleware

import (
	"fashion-store-backend/internal/errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorMonitorMiddleware 将处理器通过 c.Error 登记的错误汇总到 analytics
func ErrorMonitorMiddleware(analytics *errors.ErrorAnalytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		userID, _ := CurrentUserID(c)
		ctx := errors.ErrorContext{
			UserID: userID,
			Path:   path,
			Method: c.Request.Method,
			Status: c.Writer.Status(),
		}

		for _, e := range c.Errors {
			traced := errors.NewTracedError(e.Err, ctx)
			analytics.Record(traced)

			// 5xx 已在 HandleError 中记录
			if ctx.Status < http.StatusInternalServerError {
				zap.L().Warn("请求处理错误",
					zap.Int("error_code", int(traced.Code)),
					zap.String("error_message", traced.Message),
					zap.String("path", path),
					zap.String("method", ctx.Method),
					zap.Int("status", ctx.Status))
			}
		}
	}
}
