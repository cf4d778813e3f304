package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/util"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// userRepository 实现了 UserRepository 接口
type userRepository struct {
	db *sql.DB
}

// NewUserRepository 创建一个新的 userRepository 实例
func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db}
}

const userColumns = `id, username, email, phone, password_hash, role, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	var phone sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &phone, &user.PasswordHash,
		&user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Phone = phone.String
	return &user, nil
}

// Create 创建一个新用户
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	util.Logger.Info("尝试创建新用户", zap.String("email", user.Email))
	if user.Role == "" {
		user.Role = "user"
	}
	now := time.Now()
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO users (username, email, phone, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, nullString(user.Phone), user.PasswordHash, user.Role, now, now)
	if err != nil {
		util.Logger.Error("创建用户失败", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}
	user.ID = int(id)
	user.CreatedAt = now
	user.UpdatedAt = now
	util.Logger.Info("用户创建成功", zap.Int("user_id", user.ID))
	return nil
}

// FindByID 通过ID查找用户，不存在时返回 nil, nil
func (r *userRepository) FindByID(ctx context.Context, id int) (*model.User, error) {
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByEmail 通过邮箱查找用户，不存在时返回 nil, nil
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Count 返回用户总数
func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE deleted_at IS NULL").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateAddress 创建一个新地址
func (r *userRepository) CreateAddress(ctx context.Context, address *model.UserAddress) error {
	util.Logger.Info("Repository: 开始创建地址", zap.Int("user_id", address.UserID))

	q := conn(ctx, r.db)
	if address.IsDefault {
		if _, err := q.ExecContext(ctx, `UPDATE user_addresses SET is_default = false WHERE user_id = ?`, address.UserID); err != nil {
			return fmt.Errorf("failed to unset default addresses: %w", err)
		}
	}

	if address.Country == "" {
		address.Country = "India"
	}
	now := time.Now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO user_addresses (user_id, full_name, phone, line1, line2, city, state, pincode, country, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		address.UserID, address.FullName, address.Phone, address.Line1, nullString(address.Line2),
		address.City, address.State, address.Pincode, address.Country, address.IsDefault, now, now)
	if err != nil {
		util.Logger.Error("执行SQL失败", zap.Error(err), zap.String("error_type", fmt.Sprintf("%T", err)))
		return fmt.Errorf("failed to execute SQL: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	address.ID = int(id)
	address.CreatedAt = now
	address.UpdatedAt = now
	util.Logger.Info("地址创建成功",
		zap.Int("address_id", address.ID),
		zap.Int("user_id", address.UserID))
	return nil
}

const addressColumns = `id, user_id, full_name, phone, line1, line2, city, state, pincode, country, is_default, created_at, updated_at`

func scanAddress(row rowScanner) (*model.UserAddress, error) {
	var a model.UserAddress
	var line2 sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &line2,
		&a.City, &a.State, &a.Pincode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Line2 = line2.String
	return &a, nil
}

// GetAddressByID 通过ID查找地址，不存在时返回 nil, nil
func (r *userRepository) GetAddressByID(ctx context.Context, id int) (*model.UserAddress, error) {
	a, err := scanAddress(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return a, nil
}

// ListUserAddresses 返回用户的地址列表
func (r *userRepository) ListUserAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+addressColumns+` FROM user_addresses
		WHERE user_id = ? ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		util.Logger.Error("查询用户地址失败", zap.Error(err), zap.Int("user_id", userID))
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []*model.UserAddress
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate addresses: %w", err)
	}
	return addresses, nil
}
