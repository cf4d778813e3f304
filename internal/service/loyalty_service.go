package service

import (
	"context"
	stderrors "errors"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// 等级门槛，按累计获得积分
var tierThresholds = []struct {
	min  int
	tier model.LoyaltyTier
}{
	{5000, model.TierPlatinum},
	{2500, model.TierGold},
	{1000, model.TierSilver},
	{0, model.TierBronze},
}

// PointsForAmount 订单金额对应的积分，四舍五入
func PointsForAmount(amount, rate float64) int {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return int(math.Round(amount * rate))
}

// TierFor 根据累计积分计算等级
func TierFor(totalEarned int) model.LoyaltyTier {
	for _, t := range tierThresholds {
		if totalEarned >= t.min {
			return t.tier
		}
	}
	return model.TierBronze
}

// nextTier 返回下一等级及所需积分，已是最高等级时返回空
func nextTier(totalEarned int) (model.LoyaltyTier, int) {
	for i := len(tierThresholds) - 1; i >= 0; i-- {
		if tierThresholds[i].min > totalEarned {
			return tierThresholds[i].tier, tierThresholds[i].min - totalEarned
		}
	}
	return "", 0
}

// LoyaltySummary 积分概览
type LoyaltySummary struct {
	Account          *model.LoyaltyAccount       `json:"account"`
	NextTier         model.LoyaltyTier           `json:"next_tier,omitempty"`
	PointsToNextTier int                         `json:"points_to_next_tier,omitempty"`
	Transactions     []*model.LoyaltyTransaction `json:"transactions"`
}

type LoyaltyService struct {
	repo   interfaces.LoyaltyRepository
	orders interfaces.OrderRepository
	uow    interfaces.UnitOfWork
	rate   float64
}

func NewLoyaltyService(repo interfaces.LoyaltyRepository, orders interfaces.OrderRepository, uow interfaces.UnitOfWork, rate float64) *LoyaltyService {
	return &LoyaltyService{repo: repo, orders: orders, uow: uow, rate: rate}
}

// AwardForOrder 为已付款订单发放积分，同一订单只发放一次
// 返回本次发放的积分，已发放过返回 0
func (s *LoyaltyService) AwardForOrder(ctx context.Context, order *model.Order) (int, error) {
	points := PointsForAmount(order.TotalAmount, s.rate)
	if points <= 0 {
		return 0, nil
	}

	awarded := 0
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.repo.GetAccount(ctx, order.UserID, true)
		if err != nil {
			return err
		}

		earned, err := s.repo.HasEarnedForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if earned {
			return nil
		}

		if account == nil {
			account = &model.LoyaltyAccount{UserID: order.UserID}
		}
		account.CurrentPoints += points
		account.TotalEarned += points
		account.Tier = TierFor(account.TotalEarned)

		orderID := order.ID
		if err := s.repo.CreateTransaction(ctx, &model.LoyaltyTransaction{
			UserID:      order.UserID,
			OrderID:     &orderID,
			Type:        model.LoyaltyEarned,
			Points:      points,
			Description: fmt.Sprintf("Earned from order %s", order.OrderNumber),
		}); err != nil {
			return err
		}
		if err := s.repo.UpsertAccount(ctx, account); err != nil {
			return err
		}
		awarded = points
		return nil
	})
	if stderrors.Is(err, interfaces.ErrDuplicate) {
		util.Logger.Info("订单积分已发放（并发）", zap.Int("order_id", order.ID))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to award loyalty points: %w", err)
	}

	if awarded > 0 {
		util.Logger.Info("积分发放成功",
			zap.Int("order_id", order.ID),
			zap.Int("user_id", order.UserID),
			zap.Int("points", awarded))
	}
	return awarded, nil
}

// Redeem 使用积分，不影响等级
func (s *LoyaltyService) Redeem(ctx context.Context, userID, points int, orderID *int) (*model.LoyaltyAccount, error) {
	if points <= 0 {
		return nil, errors.New(errors.ErrValidation, "使用积分必须大于 0")
	}

	var account *model.LoyaltyAccount
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.GetAccount(ctx, userID, true)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "查询积分账户失败", err)
		}
		if account == nil || account.CurrentPoints < points {
			return errors.New(errors.ErrInsufficientPoints, "积分不足")
		}

		if orderID != nil {
			order, err := s.orders.GetOrderByID(ctx, *orderID)
			if err != nil {
				return errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
			}
			if order == nil || order.UserID != userID {
				return errors.New(errors.ErrOrderNotFound, "订单不存在")
			}
		}

		account.CurrentPoints -= points
		if err := s.repo.CreateTransaction(ctx, &model.LoyaltyTransaction{
			UserID:      userID,
			OrderID:     orderID,
			Type:        model.LoyaltyRedeemed,
			Points:      -points,
			Description: fmt.Sprintf("Redeemed %d points", points),
		}); err != nil {
			return errors.Wrap(errors.ErrDatabase, "记录积分流水失败", err)
		}
		if err := s.repo.UpsertAccount(ctx, account); err != nil {
			return errors.Wrap(errors.ErrDatabase, "更新积分账户失败", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetSummary 返回积分账户、升级进度和最近流水
func (s *LoyaltyService) GetSummary(ctx context.Context, userID int) (*LoyaltySummary, error) {
	account, err := s.repo.GetAccount(ctx, userID, false)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询积分账户失败", err)
	}
	if account == nil {
		account = &model.LoyaltyAccount{UserID: userID, Tier: model.TierBronze}
	}

	txs, err := s.repo.ListTransactions(ctx, userID, 20)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询积分流水失败", err)
	}

	summary := &LoyaltySummary{Account: account, Transactions: txs}
	summary.NextTier, summary.PointsToNextTier = nextTier(account.TotalEarned)
	return summary, nil
}

// BackfillAwards 为已付款但漏发积分的订单补发
func (s *LoyaltyService) BackfillAwards(ctx context.Context, limit int) (int, error) {
	orders, err := s.orders.ListPaidOrdersWithoutLoyalty(ctx, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, order := range orders {
		points, err := s.AwardForOrder(ctx, order)
		if err != nil {
			util.Logger.Error("补发积分失败", zap.Error(err), zap.Int("order_id", order.ID))
			continue
		}
		if points > 0 {
			count++
		}
	}
	if count > 0 {
		util.Logger.Info("积分补发完成", zap.Int("orders", count))
	}
	return count, nil
}

// Reconcile 对比账户余额与流水汇总，repair 为 true 时以流水为准修正账户
func (s *LoyaltyService) Reconcile(ctx context.Context, repair bool) ([]model.LoyaltyDrift, error) {
	totals, err := s.repo.LedgerTotals(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[int]*model.LoyaltyAccount, len(accounts))
	for _, a := range accounts {
		byUser[a.UserID] = a
	}
	ledger := make(map[int]model.LoyaltyLedgerTotals, len(totals))
	for _, t := range totals {
		ledger[t.UserID] = t
	}

	var drifts []model.LoyaltyDrift
	for _, t := range totals {
		a, ok := byUser[t.UserID]
		if ok && a.CurrentPoints == t.Balance && a.TotalEarned == t.Earned {
			continue
		}
		d := model.LoyaltyDrift{UserID: t.UserID, LedgerPoints: t.Balance, LedgerEarned: t.Earned, MissingAccount: !ok}
		if ok {
			d.AccountPoints, d.AccountEarned = a.CurrentPoints, a.TotalEarned
		}
		drifts = append(drifts, d)
	}
	for _, a := range accounts {
		if _, ok := ledger[a.UserID]; !ok && (a.CurrentPoints != 0 || a.TotalEarned != 0) {
			drifts = append(drifts, model.LoyaltyDrift{
				UserID: a.UserID, AccountPoints: a.CurrentPoints, AccountEarned: a.TotalEarned,
			})
		}
	}

	if !repair {
		return drifts, nil
	}
	for i := range drifts {
		d := &drifts[i]
		if err := s.repairAccount(ctx, d); err != nil {
			util.Logger.Error("修正积分账户失败", zap.Error(err), zap.Int("user_id", d.UserID))
			continue
		}
		d.Repaired = true
	}
	return drifts, nil
}

// repairAccount 锁定账户行后重新汇总该用户流水再覆盖账户
// 汇总结果回写到 d，核对期间提交的发放或使用都会计入
func (s *LoyaltyService) repairAccount(ctx context.Context, d *model.LoyaltyDrift) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.repo.GetAccount(ctx, d.UserID, true)
		if err != nil {
			return err
		}
		totals, err := s.repo.UserLedgerTotals(ctx, d.UserID)
		if err != nil {
			return err
		}
		d.LedgerPoints, d.LedgerEarned = totals.Balance, totals.Earned

		if account == nil {
			account = &model.LoyaltyAccount{UserID: d.UserID}
		}
		account.CurrentPoints = totals.Balance
		account.TotalEarned = totals.Earned
		account.Tier = TierFor(totals.Earned)
		return s.repo.UpsertAccount(ctx, account)
	})
}
