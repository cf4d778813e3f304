package middleware

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fashion-store-backend/config"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "middleware-test-secret"
	os.Exit(m.Run())
}

// MockUserService 是 UserServiceInterface 的模拟实现
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *MockUserService) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockUserService) IsTokenBlacklisted(ctx context.Context, token string) bool {
	return m.Called(ctx, token).Bool(0)
}

func (m *MockUserService) CreateAddress(ctx context.Context, address *model.UserAddress) error {
	return m.Called(ctx, address).Error(0)
}

func (m *MockUserService) ListAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error) {
	args := m.Called(ctx, userID)
	addrs, _ := args.Get(0).([]*model.UserAddress)
	return addrs, args.Error(1)
}

var _ service.UserServiceInterface = (*MockUserService)(nil)

func perform(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) errors.ErrorCode {
	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

// TestAuthMiddleware 测试认证中间件
func TestAuthMiddleware(t *testing.T) {
	token, err := util.GenerateToken(7)
	require.NoError(t, err)

	users := new(MockUserService)
	users.On("IsTokenBlacklisted", mock.Anything, "revoked").Return(true)
	users.On("IsTokenBlacklisted", mock.Anything, mock.Anything).Return(false)

	router := gin.New()
	router.GET("/me", AuthMiddleware(users), func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		assert.True(t, ok)
		_, hasDeadline := c.Request.Context().Deadline()
		assert.True(t, hasDeadline)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	tests := []struct {
		name   string
		header string
		status int
		code   errors.ErrorCode
	}{
		{"缺少令牌", "", http.StatusUnauthorized, errors.ErrUnauthorized},
		{"格式错误", "Token " + token, http.StatusUnauthorized, errors.ErrUnauthorized},
		{"已注销", "Bearer revoked", http.StatusUnauthorized, errors.ErrInvalidToken},
		{"无效令牌", "Bearer not-a-jwt", http.StatusUnauthorized, errors.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	w := perform(router, http.MethodGet, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7}`, w.Body.String())
}

// TestOptionalAuthMiddleware 测试可选认证
func TestOptionalAuthMiddleware(t *testing.T) {
	token, _ := util.GenerateToken(9)
	users := new(MockUserService)
	users.On("IsTokenBlacklisted", mock.Anything, mock.Anything).Return(false)

	router := gin.New()
	router.GET("/p", OptionalAuthMiddleware(users), func(c *gin.Context) {
		id, _ := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	assert.JSONEq(t, `{"user_id":0}`, perform(router, http.MethodGet, "/p", "").Body.String())
	assert.JSONEq(t, `{"user_id":0}`, perform(router, http.MethodGet, "/p", "garbage").Body.String())
	assert.JSONEq(t, `{"user_id":9}`, perform(router, http.MethodGet, "/p", token).Body.String())
}

// TestAdminMiddleware 测试管理员校验
func TestAdminMiddleware(t *testing.T) {
	users := new(MockUserService)
	users.On("IsTokenBlacklisted", mock.Anything, mock.Anything).Return(false)
	users.On("GetUserByID", mock.Anything, 1).Return(&model.User{ID: 1, Role: "admin"}, nil)
	users.On("GetUserByID", mock.Anything, 7).Return(&model.User{ID: 7, Role: "user"}, nil)
	users.On("GetUserByID", mock.Anything, 99).Return(nil, errors.New(errors.ErrUserNotFound, "用户不存在"))

	router := gin.New()
	router.GET("/admin", AuthMiddleware(users), AdminMiddleware(users), func(c *gin.Context) {
		assert.True(t, IsAdmin(c))
		c.Status(http.StatusNoContent)
	})

	for id, status := range map[int]int{1: http.StatusNoContent, 7: http.StatusForbidden, 99: http.StatusForbidden} {
		token, _ := util.GenerateToken(id)
		w := perform(router, http.MethodGet, "/admin", token)
		assert.Equal(t, status, w.Code, "user %d", id)
	}
}

// TestRecoveryAndErrorMonitor 测试 panic 恢复与错误统计
func TestRecoveryAndErrorMonitor(t *testing.T) {
	analytics := errors.NewErrorAnalytics()
	router := gin.New()
	router.Use(ErrorMonitorMiddleware(analytics), RecoveryMiddleware())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	router.GET("/orders/:id", func(c *gin.Context) {
		errors.HandleError(c, errors.New(errors.ErrOrderNotFound, "订单不存在"))
	})
	router.GET("/db", func(c *gin.Context) {
		errors.HandleError(c, errors.Wrap(errors.ErrDatabase, "查询失败", stderrors.New("conn reset")))
	})

	w := perform(router, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")

	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodGet, "/orders/5", "").Code)
	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodGet, "/orders/6", "").Code)
	assert.Equal(t, http.StatusInternalServerError, perform(router, http.MethodGet, "/db", "").Code)

	stats := analytics.GetStats()
	assert.Equal(t, 4, stats["total_errors"])
	byPath := stats["errors_by_path"].(map[string]int)
	assert.Equal(t, 2, byPath["/orders/:id"])
	byCode := stats["errors_by_code"].(map[errors.ErrorCode]int)
	assert.Equal(t, 2, byCode[errors.ErrOrderNotFound])
	assert.Equal(t, 1, byCode[errors.ErrDatabase])
	assert.Equal(t, 1, byCode[errors.ErrInternal])
}

// TestRateLimitMiddleware 测试滑动窗口限流
func TestRateLimitMiddleware(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	router := gin.New()
	router.POST("/verify", RateLimitMiddleware(rdb, "verify", 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(router, http.MethodPost, "/verify", "").Code)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodPost, "/verify", "").Code)
	w := perform(router, http.MethodPost, "/verify", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, errors.ErrTooManyRequests, errorCode(t, w))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Redis 不可用时放行
	s.Close()
	assert.Equal(t, http.StatusOK, perform(router, http.MethodPost, "/verify", "").Code)
}
