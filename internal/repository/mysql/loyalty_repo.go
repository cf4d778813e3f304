package mysql

import (
	"context"
	"database/sql"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fmt"
	"time"
)

type LoyaltyRepository struct {
	db *sql.DB
}

func NewLoyaltyRepository(db *sql.DB) *LoyaltyRepository {
	return &LoyaltyRepository{db}
}

func (r *LoyaltyRepository) GetAccount(ctx context.Context, userID int, forUpdate bool) (*model.LoyaltyAccount, error) {
	var a model.LoyaltyAccount
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT user_id, current_points, total_earned, tier, created_at, updated_at
		FROM loyalty_points WHERE user_id = ?`+lockClause(ctx, forUpdate), userID).
		Scan(&a.UserID, &a.CurrentPoints, &a.TotalEarned, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loyalty account: %w", err)
	}
	return &a, nil
}

// UpsertAccount 按 user_id 插入或覆盖账户
func (r *LoyaltyRepository) UpsertAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO loyalty_points (user_id, current_points, total_earned, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE current_points = VALUES(current_points),
			total_earned = VALUES(total_earned), tier = VALUES(tier), updated_at = VALUES(updated_at)`,
		a.UserID, a.CurrentPoints, a.TotalEarned, a.Tier, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert loyalty account: %w", err)
	}
	return nil
}

func (r *LoyaltyRepository) HasEarnedForOrder(ctx context.Context, orderID int) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM loyalty_transactions WHERE order_id = ? AND type = ?)`,
		orderID, model.LoyaltyEarned).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check loyalty transaction: %w", err)
	}
	return exists, nil
}

// CreateTransaction 追加积分流水，(order_id, type) 唯一
func (r *LoyaltyRepository) CreateTransaction(ctx context.Context, t *model.LoyaltyTransaction) error {
	t.CreatedAt = time.Now()
	var orderID sql.NullInt64
	if t.OrderID != nil {
		orderID = sql.NullInt64{Int64: int64(*t.OrderID), Valid: true}
	}
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO loyalty_transactions (user_id, order_id, type, points, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, orderID, t.Type, t.Points, t.Description, t.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("loyalty transaction for order already exists: %w", interfaces.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert loyalty transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get loyalty transaction ID: %w", err)
	}
	t.ID = int(id)
	return nil
}

func (r *LoyaltyRepository) ListTransactions(ctx context.Context, userID, limit int) ([]*model.LoyaltyTransaction, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, user_id, order_id, type, points, description, created_at
		FROM loyalty_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.LoyaltyTransaction
	for rows.Next() {
		var t model.LoyaltyTransaction
		var orderID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &orderID, &t.Type, &t.Points, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty transaction: %w", err)
		}
		if orderID.Valid {
			id := int(orderID.Int64)
			t.OrderID = &id
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// LedgerTotals 按用户汇总流水
func (r *LoyaltyRepository) LedgerTotals(ctx context.Context) ([]model.LoyaltyLedgerTotals, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT user_id, COALESCE(SUM(points), 0), COALESCE(SUM(CASE WHEN type = ? THEN points ELSE 0 END), 0)
		FROM loyalty_transactions GROUP BY user_id ORDER BY user_id`, model.LoyaltyEarned)
	if err != nil {
		return nil, fmt.Errorf("failed to sum loyalty ledger: %w", err)
	}
	defer rows.Close()

	var totals []model.LoyaltyLedgerTotals
	for rows.Next() {
		var t model.LoyaltyLedgerTotals
		if err := rows.Scan(&t.UserID, &t.Balance, &t.Earned); err != nil {
			return nil, fmt.Errorf("failed to scan ledger totals: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// UserLedgerTotals 汇总单个用户的流水，无流水时返回零值
func (r *LoyaltyRepository) UserLedgerTotals(ctx context.Context, userID int) (model.LoyaltyLedgerTotals, error) {
	t := model.LoyaltyLedgerTotals{UserID: userID}
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0), COALESCE(SUM(CASE WHEN type = ? THEN points ELSE 0 END), 0)
		FROM loyalty_transactions WHERE user_id = ?`, model.LoyaltyEarned, userID).
		Scan(&t.Balance, &t.Earned)
	if err != nil {
		return t, fmt.Errorf("failed to sum loyalty ledger for user: %w", err)
	}
	return t, nil
}

func (r *LoyaltyRepository) ListAccounts(ctx context.Context) ([]*model.LoyaltyAccount, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT user_id, current_points, total_earned, tier, created_at, updated_at
		FROM loyalty_points ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loyalty accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.LoyaltyAccount
	for rows.Next() {
		var a model.LoyaltyAccount
		if err := rows.Scan(&a.UserID, &a.CurrentPoints, &a.TotalEarned, &a.Tier, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}
