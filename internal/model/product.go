package model

import "time"

// Product 商品，仅包含订单流程需要的字段
type Product struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	ImageURL      string    `json:"image_url,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StockMovementType 库存变动类型
type StockMovementType string

const (
	StockMovementRestock    StockMovementType = "restock"
	StockMovementAdjustment StockMovementType = "adjustment"
	StockMovementDamage     StockMovementType = "damage"
)

func (t StockMovementType) Valid() bool {
	switch t {
	case StockMovementRestock, StockMovementAdjustment, StockMovementDamage:
		return true
	}
	return false
}

// StockMovement 管理员直接调整库存的记录，Quantity 可为负
type StockMovement struct {
	ID        int               `json:"id"`
	ProductID int               `json:"product_id"`
	Type      StockMovementType `json:"type"`
	Quantity  int               `json:"quantity"`
	Note      string            `json:"note,omitempty"`
	CreatedBy int               `json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
}
