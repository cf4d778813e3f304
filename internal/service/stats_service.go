package service

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
)

type StatsService struct {
	userRepo  interfaces.UserRepository
	orderRepo interfaces.OrderRepository
}

func NewStatsService(userRepo interfaces.UserRepository, orderRepo interfaces.OrderRepository) *StatsService {
	return &StatsService{
		userRepo:  userRepo,
		orderRepo: orderRepo,
	}
}

func (s *StatsService) GetSystemStats(ctx context.Context) (*model.SystemStats, error) {
	userCount, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "统计用户失败", err)
	}

	orderStats, err := s.orderRepo.GetOrderStats(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "统计订单失败", err)
	}

	return &model.SystemStats{
		TotalUsers:    userCount,
		TotalOrders:   orderStats.TotalOrders,
		PaidRevenue:   orderStats.PaidRevenue,
		PendingOrders: orderStats.ByStatus[model.OrderStatusPending],
		OrdersBy:      orderStats.ByStatus,
	}, nil
}
