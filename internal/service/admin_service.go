package service

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"

	"go.uber.org/zap"
)

// AdminService 后台维护操作，供管理接口和 opsctl 共用
type AdminService struct {
	orders    *OrderService
	loyalty   *LoyaltyService
	inventory *InventoryService
	stats     *StatsService
	outbox    interfaces.OutboxRepository
}

func NewAdminService(orders *OrderService, loyalty *LoyaltyService, inventory *InventoryService, stats *StatsService, outbox interfaces.OutboxRepository) *AdminService {
	return &AdminService{
		orders:    orders,
		loyalty:   loyalty,
		inventory: inventory,
		stats:     stats,
		outbox:    outbox,
	}
}

func (s *AdminService) GetSystemStats(ctx context.Context) (*model.SystemStats, error) {
	return s.stats.GetSystemStats(ctx)
}

// ExpireOrders 立即执行一次超时订单清理
func (s *AdminService) ExpireOrders(ctx context.Context) (int, error) {
	return s.orders.ExpirePendingOrders(ctx)
}

// BackfillLoyalty 补发漏发的订单积分
func (s *AdminService) BackfillLoyalty(ctx context.Context, limit int) (int, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	count, err := s.loyalty.BackfillAwards(ctx, limit)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "补发积分失败", err)
	}
	return count, nil
}

// ReconcileLoyalty 核对积分账户，fix 为 true 时按流水修正
func (s *AdminService) ReconcileLoyalty(ctx context.Context, fix bool) ([]model.LoyaltyDrift, error) {
	drifts, err := s.loyalty.Reconcile(ctx, fix)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "核对积分失败", err)
	}
	if len(drifts) > 0 {
		util.Logger.Warn("积分账户与流水不一致", zap.Int("accounts", len(drifts)), zap.Bool("fix", fix))
	}
	return drifts, nil
}

// OutboxSummary 各状态的通知数量
func (s *AdminService) OutboxSummary(ctx context.Context) (map[model.OutboxStatus]int, error) {
	counts, err := s.outbox.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "统计通知失败", err)
	}
	return counts, nil
}

// RecordStockMovement 记录管理员的库存调整
func (s *AdminService) RecordStockMovement(ctx context.Context, movement *model.StockMovement) error {
	return s.inventory.RecordMovement(ctx, movement)
}
