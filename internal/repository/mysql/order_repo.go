package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var orderColumnNames = []string{
	"id", "order_number", "user_id", "status", "payment_status", "payment_method",
	"subtotal", "delivery_fee", "total_amount", "shipping_address",
	"razorpay_order_id", "razorpay_payment_id", "razorpay_signature",
	"tracking_number", "user_notes", "admin_notes", "cancel_reason", "invoice_url",
	"inventory_adjusted_at", "inventory_restored_at", "paid_at", "created_at", "updated_at",
}

var orderColumns = strings.Join(orderColumnNames, ", ")

// orderColumnsAs 带表别名的列清单
func orderColumnsAs(alias string) string {
	cols := make([]string, len(orderColumnNames))
	for i, c := range orderColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		order                                 model.Order
		address                               []byte
		gatewayOrderID, gatewayPaymentID      sql.NullString
		gatewaySignature, tracking, userNotes sql.NullString
		adminNotes, cancelReason, invoiceURL  sql.NullString
		adjustedAt, restoredAt, paidAt        sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&order.Subtotal, &order.DeliveryFee, &order.TotalAmount, &address,
		&gatewayOrderID, &gatewayPaymentID, &gatewaySignature,
		&tracking, &userNotes, &adminNotes, &cancelReason, &invoiceURL,
		&adjustedAt, &restoredAt, &paidAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	order.RazorpayOrderID = gatewayOrderID.String
	order.RazorpayPaymentID = gatewayPaymentID.String
	order.RazorpaySignature = gatewaySignature.String
	order.TrackingNumber = tracking.String
	order.UserNotes = userNotes.String
	order.AdminNotes = adminNotes.String
	order.CancelReason = cancelReason.String
	order.InvoiceURL = invoiceURL.String
	if adjustedAt.Valid {
		order.InventoryAdjustedAt = &adjustedAt.Time
	}
	if restoredAt.Valid {
		order.InventoryRestoredAt = &restoredAt.Time
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return &order, nil
}

func scanOrders(rows *sql.Rows) ([]*model.Order, error) {
	defer rows.Close()
	var orders []*model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

func generateOrderNumber(year, id int) string {
	return fmt.Sprintf("ORD-%d-%04d", year, id)
}

// CreateOrder 写入订单及明细，调用方负责事务
func (r *OrderRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	util.Logger.Info("开始创建订单",
		zap.Int("user_id", order.UserID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.Int("items", len(order.Items)))

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	q := conn(ctx, r.db)
	result, err := q.ExecContext(ctx, `
		INSERT INTO orders (order_number, user_id, status, payment_status, payment_method,
			subtotal, delivery_fee, total_amount, shipping_address, user_notes, created_at, updated_at)
		VALUES ('TEMP', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Status, order.PaymentStatus, order.PaymentMethod,
		order.Subtotal, order.DeliveryFee, order.TotalAmount, address, nullString(order.UserNotes),
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		util.Logger.Error("插入订单记录失败", zap.Error(err))
		return fmt.Errorf("failed to insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order ID: %w", err)
	}
	order.ID = int(id)
	order.OrderNumber = generateOrderNumber(now.Year(), order.ID)

	if _, err := q.ExecContext(ctx, `UPDATE orders SET order_number = ? WHERE id = ?`, order.OrderNumber, order.ID); err != nil {
		return fmt.Errorf("failed to set order number: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		res, err := q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, size, quantity, price, total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.OrderID, item.ProductID, item.ProductName, nullString(item.Size), item.Quantity, item.Price, item.Total)
		if err != nil {
			util.Logger.Error("插入订单明细失败", zap.Error(err), zap.Int("product_id", item.ProductID))
			return fmt.Errorf("failed to insert order item: %w", err)
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get order item ID: %w", err)
		}
		item.ID = int(itemID)
	}

	util.Logger.Info("订单创建成功",
		zap.Int("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, where string, arg interface{}, forUpdate bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + lockClause(ctx, forUpdate)
	order, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrderByID 获取订单（不含明细）
func (r *OrderRepository) GetOrderByID(ctx context.Context, id int) (*model.Order, error) {
	return r.getOne(ctx, "id = ?", id, false)
}

// GetOrderForUpdate 在事务内锁定订单行
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id int) (*model.Order, error) {
	return r.getOne(ctx, "id = ?", id, true)
}

// GetOrderByGatewayOrderID 通过支付网关订单号查找订单
func (r *OrderRepository) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string, forUpdate bool) (*model.Order, error) {
	return r.getOne(ctx, "razorpay_order_id = ?", gatewayOrderID, forUpdate)
}

func (r *OrderRepository) GetOrderItems(ctx context.Context, orderID int) ([]model.OrderItem, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, size, quantity, price, total
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		var size sql.NullString
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&size, &item.Quantity, &item.Price, &item.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.Size = size.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OrderRepository) GetOrdersByUser(ctx context.Context, userID, page, pageSize int) ([]*model.Order, int, error) {
	return r.ListOrders(ctx, model.OrderFilter{UserID: userID, Page: page, PageSize: pageSize})
}

// ListOrders 按条件分页查询订单
func (r *OrderRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		conds = append(conds, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	if filter.UserID > 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := conn(ctx, r.db)
	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrder 写回订单的可变字段
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *model.Order) error {
	order.UpdatedAt = time.Now()
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders SET status = ?, payment_status = ?,
			razorpay_order_id = ?, razorpay_payment_id = ?, razorpay_signature = ?,
			tracking_number = ?, user_notes = ?, admin_notes = ?, cancel_reason = ?, invoice_url = ?,
			inventory_adjusted_at = ?, inventory_restored_at = ?, paid_at = ?, updated_at = ?
		WHERE id = ?`,
		order.Status, order.PaymentStatus,
		nullString(order.RazorpayOrderID), nullString(order.RazorpayPaymentID), nullString(order.RazorpaySignature),
		nullString(order.TrackingNumber), nullString(order.UserNotes), nullString(order.AdminNotes),
		nullString(order.CancelReason), nullString(order.InvoiceURL),
		order.InventoryAdjustedAt, order.InventoryRestoredAt, order.PaidAt, order.UpdatedAt,
		order.ID)
	if err != nil {
		util.Logger.Error("更新订单失败", zap.Error(err), zap.Int("order_id", order.ID))
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// SetInvoiceURL 只更新发票地址，避免覆盖并发写入的其他字段
func (r *OrderRepository) SetInvoiceURL(ctx context.Context, orderID int, url string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET invoice_url = ?, updated_at = ? WHERE id = ?`, url, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to set invoice url: %w", err)
	}
	return nil
}

// ListExpiredPendingOrders 查询超过支付窗口仍未付款的在线订单
func (r *OrderRepository) ListExpiredPendingOrders(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND payment_method = ? AND payment_status <> ? AND created_at < ?
		ORDER BY id LIMIT ?`,
		model.OrderStatusPending, model.PaymentMethodOnline, model.PaymentStatusPaid, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired orders: %w", err)
	}
	return scanOrders(rows)
}

// ListPaidOrdersWithoutLoyalty 查询已付款但没有积分入账记录的订单
func (r *OrderRepository) ListPaidOrdersWithoutLoyalty(ctx context.Context, limit int) ([]*model.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+orderColumnsAs("o")+` FROM orders o
		LEFT JOIN loyalty_transactions lt ON lt.order_id = o.id AND lt.type = ?
		WHERE o.payment_status = ? AND o.status <> ? AND lt.id IS NULL
		ORDER BY o.id LIMIT ?`,
		model.LoyaltyEarned, model.PaymentStatusPaid, model.OrderStatusCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders missing loyalty: %w", err)
	}
	return scanOrders(rows)
}

func (r *OrderRepository) GetOrderStats(ctx context.Context) (*model.OrderStats, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(CASE WHEN payment_status = ? THEN total_amount ELSE 0 END), 0)
		FROM orders GROUP BY status`, model.PaymentStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	defer rows.Close()

	stats := &model.OrderStats{ByStatus: make(map[model.OrderStatus]int)}
	for rows.Next() {
		var (
			status  model.OrderStatus
			count   int
			revenue float64
		)
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan order stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.TotalOrders += count
		stats.PaidRevenue += revenue
	}
	return stats, rows.Err()
}
