package interfaces

import (
	"context"
	"fashion-store-backend/internal/model"
)

// LoyaltyRepository 积分账户与流水仓库
type LoyaltyRepository interface {
	// GetAccount forUpdate 为 true 时在事务内锁定账户行
	GetAccount(ctx context.Context, userID int, forUpdate bool) (*model.LoyaltyAccount, error)
	UpsertAccount(ctx context.Context, account *model.LoyaltyAccount) error
	HasEarnedForOrder(ctx context.Context, orderID int) (bool, error)
	CreateTransaction(ctx context.Context, tx *model.LoyaltyTransaction) error
	ListTransactions(ctx context.Context, userID, limit int) ([]*model.LoyaltyTransaction, error)
	LedgerTotals(ctx context.Context) ([]model.LoyaltyLedgerTotals, error)
	UserLedgerTotals(ctx context.Context, userID int) (model.LoyaltyLedgerTotals, error)
	ListAccounts(ctx context.Context) ([]*model.LoyaltyAccount, error)
}
