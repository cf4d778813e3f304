package user

import (
	"bytes"
	"context"
	"encoding/json"
	"fashion-store-backend/config"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "user-handler-secret"
	os.Exit(m.Run())
}

// MockUserService 是 UserServiceInterface 的模拟实现
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
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
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockUserService) IsTokenBlacklisted(ctx context.Context, token string) bool {
	args := m.Called(ctx, token)
	return args.Bool(0)
}

func (m *MockUserService) CreateAddress(ctx context.Context, address *model.UserAddress) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *MockUserService) ListAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error) {
	args := m.Called(ctx, userID)
	addrs, _ := args.Get(0).([]*model.UserAddress)
	return addrs, args.Error(1)
}

// 确保 MockUserService 实现了 UserServiceInterface
var _ service.UserServiceInterface = (*MockUserService)(nil)

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestRegister 测试注册处理器
func TestRegister(t *testing.T) {
	mockService := new(MockUserService)
	handler := NewAuthHandler(mockService)

	router := gin.New()
	router.POST("/register", handler.Register)

	mockService.On("Register", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "asha@example.com"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.User).ID = 12
	}).Return(nil).Once()

	w := postJSON(router, "/register", `{"username": "asha", "email": "asha@example.com", "password": "Str0ngPass"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":12`)

	// 邮箱已注册
	mockService.On("Register", mock.Anything, mock.AnythingOfType("*model.User")).
		Return(errors.New(errors.ErrUserExists, "email already registered")).Once()
	w = postJSON(router, "/register", `{"username": "asha", "email": "asha@example.com", "password": "Str0ngPass"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 缺少字段不调用服务
	w = postJSON(router, "/register", `{"email": "not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

// TestLogin 测试登录处理器
func TestLogin(t *testing.T) {
	mockService := new(MockUserService)
	handler := NewAuthHandler(mockService)

	router := gin.New()
	router.POST("/login", handler.Login)

	mockUser := &model.User{ID: 1, Email: "test@example.com"}
	mockService.On("Login", mock.Anything, "test@example.com", "password123").Return(mockUser, nil)
	mockService.On("Login", mock.Anything, "test@example.com", "wrongpassword").
		Return(nil, errors.New(errors.ErrInvalidCredentials, "invalid email or password"))

	w := postJSON(router, "/login", `{"email": "test@example.com", "password": "password123"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Data.Token)

	w = postJSON(router, "/login", `{"email": "test@example.com", "password": "wrongpassword"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockService.AssertExpectations(t)
}

// TestLogout 测试登出使用认证中间件写入的令牌
func TestLogout(t *testing.T) {
	mockService := new(MockUserService)
	handler := NewAuthHandler(mockService)

	router := gin.New()
	router.POST("/logout", func(c *gin.Context) {
		c.Set("user_id", 3)
		c.Set("token", "tok-abc")
		c.Next()
	}, handler.Logout)

	mockService.On("Logout", mock.Anything, "tok-abc").Return(nil)

	w := postJSON(router, "/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestAddresses 测试地址接口
func TestAddresses(t *testing.T) {
	mockService := new(MockUserService)
	handler := NewUserHandler(mockService)

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("user_id", 5) })
	router.POST("/addresses", handler.CreateAddress)
	router.GET("/addresses", handler.ListAddresses)

	mockService.On("CreateAddress", mock.Anything, mock.MatchedBy(func(a *model.UserAddress) bool {
		return a.UserID == 5 && a.ID == 0 && a.Pincode == "560001"
	})).Return(nil).Once()
	mockService.On("CreateAddress", mock.Anything, mock.Anything).
		Return(errors.New(errors.ErrValidation, "invalid pincode")).Once()
	mockService.On("ListAddresses", mock.Anything, 5).Return(nil, nil)

	w := postJSON(router, "/addresses", `{"id": 99, "user_id": 1, "full_name": "Asha Rao", "phone": "9876543210",
		"line1": "12 MG Road", "city": "Bengaluru", "state": "KA", "pincode": "560001"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/addresses", `{"full_name": "Asha Rao", "pincode": "12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/addresses", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	mockService.AssertExpectations(t)
}
