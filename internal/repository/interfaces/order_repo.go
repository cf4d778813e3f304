package interfaces

import (
	"context"
	"fashion-store-backend/internal/model"
	"time"
)

// OrderRepository 订单仓库
// 查询不到记录时返回 nil, nil
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrderByID(ctx context.Context, id int) (*model.Order, error)
	GetOrderForUpdate(ctx context.Context, id int) (*model.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string, forUpdate bool) (*model.Order, error)
	GetOrderItems(ctx context.Context, orderID int) ([]model.OrderItem, error)
	GetOrdersByUser(ctx context.Context, userID, page, pageSize int) ([]*model.Order, int, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	SetInvoiceURL(ctx context.Context, orderID int, url string) error
	ListExpiredPendingOrders(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
	ListPaidOrdersWithoutLoyalty(ctx context.Context, limit int) ([]*model.Order, error)
	GetOrderStats(ctx context.Context) (*model.OrderStats, error)
}
