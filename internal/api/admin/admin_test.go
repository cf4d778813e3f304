package admin

import (
	"bytes"
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) GetSystemStats(ctx context.Context) (*model.SystemStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*model.SystemStats)
	return s, args.Error(1)
}

func (m *MockAdminService) ExpireOrders(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAdminService) BackfillLoyalty(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockAdminService) ReconcileLoyalty(ctx context.Context, fix bool) ([]model.LoyaltyDrift, error) {
	args := m.Called(ctx, fix)
	d, _ := args.Get(0).([]model.LoyaltyDrift)
	return d, args.Error(1)
}

func (m *MockAdminService) OutboxSummary(ctx context.Context) (map[model.OutboxStatus]int, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).(map[model.OutboxStatus]int)
	return c, args.Error(1)
}

func (m *MockAdminService) RecordStockMovement(ctx context.Context, movement *model.StockMovement) error {
	return m.Called(ctx, movement).Error(0)
}

func setupRouter(svc AdminService, analytics *errors.ErrorAnalytics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAdminHandler(svc, analytics)
	router := gin.New()
	admin := router.Group("/api/admin", func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Set("is_admin", true)
	})
	admin.GET("/errors", h.GetErrorStats)
	admin.POST("/orders/expire", h.ExpireOrders)
	admin.POST("/loyalty/backfill", h.BackfillLoyalty)
	admin.GET("/loyalty/reconcile", h.ReconcileLoyalty)
	admin.POST("/loyalty/reconcile", h.ReconcileLoyalty)
	admin.GET("/outbox", h.OutboxSummary)
	admin.POST("/products/:id/stock-movements", h.CreateStockMovement)
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestMaintenanceEndpoints 测试维护接口
func TestMaintenanceEndpoints(t *testing.T) {
	svc := new(MockAdminService)
	analytics := errors.NewErrorAnalytics()
	analytics.Record(errors.NewTracedError(errors.New(errors.ErrSignatureMismatch, "bad"), errors.ErrorContext{Path: "/api/payments/verify"}))
	router := setupRouter(svc, analytics)

	svc.On("ExpireOrders", mock.Anything).Return(3, nil)
	svc.On("BackfillLoyalty", mock.Anything, 50).Return(2, nil)
	svc.On("ReconcileLoyalty", mock.Anything, true).Return(nil, nil)
	svc.On("OutboxSummary", mock.Anything).Return(map[model.OutboxStatus]int{model.OutboxPending: 4}, nil)

	w := do(router, http.MethodPost, "/api/admin/orders/expire", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":3`)

	w = do(router, http.MethodPost, "/api/admin/loyalty/backfill?limit=50", "")
	assert.Contains(t, w.Body.String(), `"awarded":2`)

	w = do(router, http.MethodPost, "/api/admin/loyalty/reconcile?fix=true", "")
	assert.Contains(t, w.Body.String(), `"drifts":[]`)
	assert.Contains(t, w.Body.String(), `"fixed":true`)

	w = do(router, http.MethodGet, "/api/admin/outbox", "")
	assert.Contains(t, w.Body.String(), `"pending":4`)

	w = do(router, http.MethodGet, "/api/admin/errors", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_errors":1`)
	svc.AssertExpectations(t)
}

// TestReconcileGetNeverRepairs 测试 GET 请求即使带 fix=true 也只报告不修正
func TestReconcileGetNeverRepairs(t *testing.T) {
	svc := new(MockAdminService)
	router := setupRouter(svc, errors.NewErrorAnalytics())

	drift := model.LoyaltyDrift{UserID: 7, AccountPoints: 55, LedgerPoints: 40}
	svc.On("ReconcileLoyalty", mock.Anything, false).Return([]model.LoyaltyDrift{drift}, nil)

	w := do(router, http.MethodGet, "/api/admin/loyalty/reconcile?fix=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fixed":false`)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "ReconcileLoyalty", mock.Anything, true)
}

// TestCreateStockMovement 测试库存调整
func TestCreateStockMovement(t *testing.T) {
	svc := new(MockAdminService)
	router := setupRouter(svc, errors.NewErrorAnalytics())

	svc.On("RecordStockMovement", mock.Anything, mock.MatchedBy(func(m *model.StockMovement) bool {
		return m.ProductID == 101 && m.Quantity == -2 && m.Type == model.StockMovementDamage && m.CreatedBy == 1
	})).Return(nil)

	w := do(router, http.MethodPost, "/api/admin/products/101/stock-movements", `{"type": "damage", "quantity": -2, "note": "torn seam"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodPost, "/api/admin/products/101/stock-movements", `{"type": "theft", "quantity": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "RecordStockMovement", 1)
}
