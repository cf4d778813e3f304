package mysql

import (
	"context"
	"database/sql"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db}
}

const productColumns = `id, name, slug, price, stock_quantity, image_url, is_active, created_at, updated_at`

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	var imageURL sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.StockQuantity, &imageURL,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ImageURL = imageURL.String
	return &p, nil
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id int) (*model.Product, error) {
	p, err := scanProduct(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// GetProductsByIDs 批量查询商品，缺失的 ID 不返回
func (r *ProductRepository) GetProductsByIDs(ctx context.Context, ids []int) ([]*model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DecrementStock 扣减库存，库存不足时归零而不是报错
func (r *ProductRepository) DecrementStock(ctx context.Context, productID, quantity int) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET stock_quantity = GREATEST(0, stock_quantity - ?), updated_at = ? WHERE id = ?`,
		quantity, time.Now(), productID)
	if err != nil {
		util.Logger.Error("扣减库存失败", zap.Error(err), zap.Int("product_id", productID), zap.Int("quantity", quantity))
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	return nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, productID, quantity int) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + ?, updated_at = ? WHERE id = ?`,
		quantity, time.Now(), productID)
	if err != nil {
		util.Logger.Error("恢复库存失败", zap.Error(err), zap.Int("product_id", productID), zap.Int("quantity", quantity))
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

func (r *ProductRepository) CreateStockMovement(ctx context.Context, m *model.StockMovement) error {
	m.CreatedAt = time.Now()
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, type, quantity, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ProductID, m.Type, m.Quantity, nullString(m.Note), m.CreatedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get stock movement ID: %w", err)
	}
	m.ID = int(id)
	return nil
}
