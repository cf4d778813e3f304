package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", func(c *gin.Context) { HandleError(c, err) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/x", nil)
	router.ServeHTTP(w, req)
	return w
}

// TestHandleErrorValidation 测试 4xx 返回具体信息
func TestHandleErrorValidation(t *testing.T) {
	w := serve(New(ErrTrackingRequired, "发货必须填写物流单号"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrTrackingRequired, resp.Code)
	assert.Equal(t, "发货必须填写物流单号", resp.Message)
}

// TestHandleErrorHidesInternalDetails 测试 5xx 不泄露内部错误
func TestHandleErrorHidesInternalDetails(t *testing.T) {
	w := serve(Wrap(ErrDatabase, "更新订单失败", stderrors.New("dial tcp 10.0.0.3:3306: refused")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
	assert.Contains(t, w.Body.String(), "Internal Server Error")
}

// TestHandleErrorWrappedAppError 测试被 fmt 包装的 AppError 仍能映射状态码
func TestHandleErrorWrappedAppError(t *testing.T) {
	err := fmt.Errorf("verify: %w", New(ErrOrderNotFound, "订单不存在"))
	w := serve(err)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrOrderNotFound, CodeOf(err))
	assert.True(t, Is(err, ErrOrderNotFound))
}

// TestErrorAnalytics 测试错误统计
func TestErrorAnalytics(t *testing.T) {
	a := NewErrorAnalytics()
	ctx := ErrorContext{Path: "/api/payments/verify", Method: http.MethodPost}
	a.Record(NewTracedError(New(ErrSignatureMismatch, "签名无效"), ctx))
	a.Record(NewTracedError(stderrors.New("boom"), ctx))

	stats := a.GetStats()
	assert.Equal(t, 2, stats["total_errors"])
	byCode := stats["errors_by_code"].(map[ErrorCode]int)
	assert.Equal(t, 1, byCode[ErrSignatureMismatch])
	assert.Equal(t, 1, byCode[ErrInternal])
	patterns := stats["error_patterns"].(map[string]int)
	assert.Equal(t, 1, patterns["POST /api/payments/verify -> 4007"])
}
