package model

import "time"

// LoyaltyTier 会员等级，由累计获得积分决定
type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "Bronze"
	TierSilver   LoyaltyTier = "Silver"
	TierGold     LoyaltyTier = "Gold"
	TierPlatinum LoyaltyTier = "Platinum"
)

// LoyaltyAccount 用户积分账户
type LoyaltyAccount struct {
	UserID        int         `json:"user_id"`
	CurrentPoints int         `json:"current_points"`
	TotalEarned   int         `json:"total_earned"`
	Tier          LoyaltyTier `json:"tier"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// LoyaltyTransactionType 积分流水类型
type LoyaltyTransactionType string

const (
	LoyaltyEarned   LoyaltyTransactionType = "earned"
	LoyaltyRedeemed LoyaltyTransactionType = "redeemed"
)

// LoyaltyTransaction 积分流水，追加写入不修改
// Points 带符号：获得为正，使用为负
type LoyaltyTransaction struct {
	ID          int                    `json:"id"`
	UserID      int                    `json:"user_id"`
	OrderID     *int                   `json:"order_id,omitempty"`
	Type        LoyaltyTransactionType `json:"type"`
	Points      int                    `json:"points"`
	Description string                 `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
}

// LoyaltyLedgerTotals 按流水汇总的积分
type LoyaltyLedgerTotals struct {
	UserID  int
	Balance int
	Earned  int
}

// LoyaltyDrift 账户余额与流水不一致的记录
type LoyaltyDrift struct {
	UserID         int  `json:"user_id"`
	AccountPoints  int  `json:"account_points"`
	LedgerPoints   int  `json:"ledger_points"`
	AccountEarned  int  `json:"account_earned"`
	LedgerEarned   int  `json:"ledger_earned"`
	MissingAccount bool `json:"missing_account"`
	Repaired       bool `json:"repaired"`
}
