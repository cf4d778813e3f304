package service

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryFixture(t *testing.T) (*memStore, *InventoryService, *model.Order) {
	t.Helper()
	clock := newFakeClock()
	store := newMemStore(clock.Now)
	store.addProduct(1, "Kurta", 800, 10)
	store.addProduct(2, "Dupatta", 300, 5)
	store.addProduct(3, "Scarf", 200, 20)

	order := &model.Order{
		UserID: customerID,
		Status: model.OrderStatusPending,
		Items: []model.OrderItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
			{ProductID: 3, Quantity: 4},
		},
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	order.Items = nil

	inv := NewInventoryService(store, store, store)
	inv.now = clock.Now
	return store, inv, order
}

// TestReserveDecrementsEachItem 测试扣减库存且只扣一次
func TestReserveDecrementsEachItem(t *testing.T) {
	store, inv, order := newInventoryFixture(t)
	ctx := context.Background()

	reserved, err := inv.Reserve(ctx, order)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.NotNil(t, order.InventoryAdjustedAt)
	assert.Equal(t, 8, store.stock(1))
	assert.Equal(t, 4, store.stock(2))
	assert.Equal(t, 16, store.stock(3))

	reserved, err = inv.Reserve(ctx, order)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, 8, store.stock(1))
	assert.Equal(t, 4, store.stock(2))
	assert.Equal(t, 16, store.stock(3))
}

// TestReserveMergesDuplicateLines 测试同一商品多行合并扣减并以 0 为下限
func TestReserveMergesDuplicateLines(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock.Now)
	store.addProduct(1, "Kurta", 800, 3)
	order := &model.Order{Items: []model.OrderItem{
		{ProductID: 1, Quantity: 2, Size: "M"},
		{ProductID: 1, Quantity: 2, Size: "L"},
	}}
	require.NoError(t, store.CreateOrder(context.Background(), order))

	inv := NewInventoryService(store, store, store)
	_, err := inv.Reserve(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, 0, store.stock(1))
}

// TestRestoreOnlyAfterReserve 测试恢复库存的前置条件与幂等
func TestRestoreOnlyAfterReserve(t *testing.T) {
	store, inv, order := newInventoryFixture(t)
	ctx := context.Background()

	restored, err := inv.Restore(ctx, order)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, 10, store.stock(1))

	_, err = inv.Reserve(ctx, order)
	require.NoError(t, err)

	restored, err = inv.Restore(ctx, order)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, 10, store.stock(1))
	assert.Equal(t, 5, store.stock(2))
	assert.Equal(t, 20, store.stock(3))

	restored, err = inv.Restore(ctx, order)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, 10, store.stock(1))
}

// TestRecordMovement 测试管理员库存调整
func TestRecordMovement(t *testing.T) {
	store, inv, _ := newInventoryFixture(t)
	ctx := context.Background()

	require.NoError(t, inv.RecordMovement(ctx, &model.StockMovement{
		ProductID: 1, Type: model.StockMovementRestock, Quantity: 5, CreatedBy: adminID,
	}))
	assert.Equal(t, 15, store.stock(1))

	damage := &model.StockMovement{ProductID: 1, Type: model.StockMovementDamage, Quantity: 3, CreatedBy: adminID}
	require.NoError(t, inv.RecordMovement(ctx, damage))
	assert.Equal(t, -3, damage.Quantity)
	assert.Equal(t, 12, store.stock(1))
	assert.Len(t, store.movements, 2)

	err := inv.RecordMovement(ctx, &model.StockMovement{ProductID: 1, Type: "gift", Quantity: 1})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = inv.RecordMovement(ctx, &model.StockMovement{ProductID: 1, Type: model.StockMovementAdjustment})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = inv.RecordMovement(ctx, &model.StockMovement{ProductID: 1, Type: model.StockMovementRestock, Quantity: -2})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = inv.RecordMovement(ctx, &model.StockMovement{ProductID: 99, Type: model.StockMovementRestock, Quantity: 1})
	assert.True(t, errors.Is(err, errors.ErrProductNotFound))
	assert.Len(t, store.movements, 2)
}
