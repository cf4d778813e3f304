package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// SuccessResponse 定义成功响应结构
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// 错误码与HTTP状态码映射
var errorStatusMap = map[ErrorCode]int{
	// 系统错误 (1000-1999)
	ErrInternal: http.StatusInternalServerError,
	ErrDatabase: http.StatusInternalServerError,
	ErrCache:    http.StatusInternalServerError,
	ErrTimeout:  http.StatusRequestTimeout,
	ErrUpstream: http.StatusInternalServerError,

	// 认证错误 (2000-2999)
	ErrUnauthorized:       http.StatusUnauthorized,
	ErrForbidden:          http.StatusForbidden,
	ErrInvalidToken:       http.StatusUnauthorized,
	ErrTokenExpired:       http.StatusUnauthorized,
	ErrInvalidCredentials: http.StatusUnauthorized,

	// 请求错误 (3000-3999)
	ErrBadRequest:       http.StatusBadRequest,
	ErrValidation:       http.StatusBadRequest,
	ErrResourceNotFound: http.StatusNotFound,
	ErrResourceExists:   http.StatusConflict,
	ErrResourceConflict: http.StatusConflict,
	ErrTooManyRequests:  http.StatusTooManyRequests,

	// 业务错误 (4000-4999)
	ErrUserNotFound:         http.StatusNotFound,
	ErrUserExists:           http.StatusConflict,
	ErrWeakPassword:         http.StatusBadRequest,
	ErrOrderNotFound:        http.StatusNotFound,
	ErrProductNotFound:      http.StatusNotFound,
	ErrInvalidTransition:    http.StatusBadRequest,
	ErrTrackingRequired:     http.StatusBadRequest,
	ErrSignatureMismatch:    http.StatusBadRequest,
	ErrPaymentWindowExpired: http.StatusBadRequest,
	ErrOrderClosed:          http.StatusConflict,
	ErrInsufficientPoints:   http.StatusBadRequest,
	ErrAddressNotFound:      http.StatusNotFound,
}

// StatusOf 返回错误码对应的 HTTP 状态码
func StatusOf(code ErrorCode) int {
	if status, ok := errorStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError 统一处理错误响应
// 5xx 只返回通用信息，具体原因写入日志
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = Wrap(ErrInternal, "Internal Server Error", err)
	}

	status := StatusOf(appErr.Code)
	resp := ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("请求处理失败",
			zap.Int("error_code", int(appErr.Code)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		resp.Message = "Internal Server Error"
	} else if appErr.Err != nil {
		resp.Error = appErr.Err.Error()
	}

	c.JSON(status, resp)
}

// HandleSuccess 统一处理成功响应
func HandleSuccess(c *gin.Context, data interface{}, message string) {
	HandleStatus(c, http.StatusOK, data, message)
}

// HandleStatus 以指定状态码返回成功响应
func HandleStatus(c *gin.Context, status int, data interface{}, message string) {
	resp := SuccessResponse{
		Code:    status,
		Message: message,
		Data:    data,
	}
	c.JSON(status, resp)
}
