package interfaces

import (
	"context"
	"fashion-store-backend/internal/model"
)

// ProductRepository 商品库存仓库
type ProductRepository interface {
	GetProductByID(ctx context.Context, id int) (*model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int) ([]*model.Product, error)
	// DecrementStock 扣减库存，结果不低于 0
	DecrementStock(ctx context.Context, productID, quantity int) error
	IncrementStock(ctx context.Context, productID, quantity int) error
	CreateStockMovement(ctx context.Context, movement *model.StockMovement) error
}
