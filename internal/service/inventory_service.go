package service

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InventoryService 处理订单相关的库存增减
// Reserve/Restore 依赖订单上的标记保证幂等，须在订单行锁所在的事务内调用
type InventoryService struct {
	orders   interfaces.OrderRepository
	products interfaces.ProductRepository
	uow      interfaces.UnitOfWork
	now      func() time.Time
}

func NewInventoryService(orders interfaces.OrderRepository, products interfaces.ProductRepository, uow interfaces.UnitOfWork) *InventoryService {
	return &InventoryService{
		orders:   orders,
		products: products,
		uow:      uow,
		now:      time.Now,
	}
}

func (s *InventoryService) orderQuantities(ctx context.Context, order *model.Order) (map[int]int, []int, error) {
	items := order.Items
	if len(items) == 0 {
		var err error
		items, err = s.orders.GetOrderItems(ctx, order.ID)
		if err != nil {
			return nil, nil, err
		}
		order.Items = items
	}

	quantities := make(map[int]int, len(items))
	var ids []int
	for _, item := range items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return quantities, ids, nil
}

// Reserve 扣减订单商品库存，已扣减过的订单直接返回 false
func (s *InventoryService) Reserve(ctx context.Context, order *model.Order) (bool, error) {
	if order.InventoryAdjustedAt != nil {
		util.Logger.Info("订单库存已扣减，跳过", zap.Int("order_id", order.ID))
		return false, nil
	}

	quantities, ids, err := s.orderQuantities(ctx, order)
	if err != nil {
		return false, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, productID := range ids {
		if err := s.products.DecrementStock(ctx, productID, quantities[productID]); err != nil {
			return false, err
		}
	}

	now := s.now()
	order.InventoryAdjustedAt = &now
	util.Logger.Info("订单库存扣减完成", zap.Int("order_id", order.ID), zap.Int("products", len(ids)))
	return true, nil
}

// Restore 恢复已扣减的库存，未扣减或已恢复的订单直接返回 false
func (s *InventoryService) Restore(ctx context.Context, order *model.Order) (bool, error) {
	if order.InventoryAdjustedAt == nil || order.InventoryRestoredAt != nil {
		return false, nil
	}

	quantities, ids, err := s.orderQuantities(ctx, order)
	if err != nil {
		return false, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, productID := range ids {
		if err := s.products.IncrementStock(ctx, productID, quantities[productID]); err != nil {
			return false, err
		}
	}

	now := s.now()
	order.InventoryRestoredAt = &now
	util.Logger.Info("订单库存已恢复", zap.Int("order_id", order.ID), zap.Int("products", len(ids)))
	return true, nil
}

// RecordMovement 管理员直接调整库存并记录流水
func (s *InventoryService) RecordMovement(ctx context.Context, m *model.StockMovement) error {
	if !m.Type.Valid() {
		return errors.New(errors.ErrValidation, "无效的库存变动类型")
	}
	if m.Quantity == 0 {
		return errors.New(errors.ErrValidation, "库存变动数量不能为 0")
	}
	if m.Type == model.StockMovementRestock && m.Quantity < 0 {
		return errors.New(errors.ErrValidation, "补货数量必须为正数")
	}
	if m.Type == model.StockMovementDamage && m.Quantity > 0 {
		m.Quantity = -m.Quantity
	}

	return s.uow.RunInTx(ctx, func(ctx context.Context) error {
		product, err := s.products.GetProductByID(ctx, m.ProductID)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "查询商品失败", err)
		}
		if product == nil {
			return errors.New(errors.ErrProductNotFound, "商品不存在")
		}

		if m.Quantity > 0 {
			err = s.products.IncrementStock(ctx, m.ProductID, m.Quantity)
		} else {
			err = s.products.DecrementStock(ctx, m.ProductID, -m.Quantity)
		}
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "调整库存失败", err)
		}
		if err := s.products.CreateStockMovement(ctx, m); err != nil {
			return errors.Wrap(errors.ErrDatabase, "记录库存流水失败", err)
		}

		util.Logger.Info("库存调整完成",
			zap.Int("product_id", m.ProductID),
			zap.String("type", string(m.Type)),
			zap.Int("quantity", m.Quantity),
			zap.Int("created_by", m.CreatedBy))
		return nil
	})
}
