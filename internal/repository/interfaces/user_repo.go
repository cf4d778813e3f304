package interfaces

import (
	"context"
	"fashion-store-backend/internal/model"
)

// UserRepository 接口定义了用户仓库应该实现的方法
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id int) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Count(ctx context.Context) (int, error)
	CreateAddress(ctx context.Context, address *model.UserAddress) error
	GetAddressByID(ctx context.Context, id int) (*model.UserAddress, error)
	ListUserAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error)
}
