package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserService 处理与用户相关的业务逻辑
type UserService struct {
	userRepo interfaces.UserRepository
	cache    cache.Cache
	// 未配置缓存时退化为进程内黑名单
	tokenBlacklist map[string]time.Time
	blacklistMutex sync.RWMutex
}

// NewUserService 创建一个新的 UserService 实例，c 可以为 nil
func NewUserService(userRepo interfaces.UserRepository, c cache.Cache) *UserService {
	return &UserService{
		userRepo:       userRepo,
		cache:          c,
		tokenBlacklist: make(map[string]time.Time),
	}
}

// Register 注册新用户，PasswordHash 传入明文密码
func (s *UserService) Register(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if len(user.PasswordHash) < minPasswordLength {
		return errors.New(errors.ErrWeakPassword, "password must be at least 8 characters")
	}
	if user.Phone != "" && !util.IsValidPhone(user.Phone) {
		return errors.New(errors.ErrValidation, "invalid phone number")
	}

	existing, err := s.userRepo.FindByEmail(ctx, user.Email)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "查询用户失败", err)
	}
	if existing != nil {
		return errors.New(errors.ErrUserExists, "email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.PasswordHash), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "生成密码哈希失败", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.Role = "user"

	if err := s.userRepo.Create(ctx, user); err != nil {
		return errors.Wrap(errors.ErrDatabase, "创建用户失败", err)
	}
	util.Logger.Info("用户注册成功", zap.Int("user_id", user.ID))
	return nil
}

// Login 用户登录
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询用户失败", err)
	}
	if user == nil {
		util.Logger.Info("用户登录失败，未找到用户", zap.String("email", email))
		return nil, errors.New(errors.ErrInvalidCredentials, "invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		util.Logger.Info("用户登录失败，密码不正确", zap.Int("user_id", user.ID))
		return nil, errors.New(errors.ErrInvalidCredentials, "invalid email or password")
	}

	util.Logger.Info("用户登录成功", zap.Int("user_id", user.ID))
	return user, nil
}

// GetUserByID 通过ID获取用户信息
func (s *UserService) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询用户失败", err)
	}
	if user == nil {
		return nil, errors.New(errors.ErrUserNotFound, "user not found")
	}
	return user, nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Logout 将令牌加入黑名单直到其过期
func (s *UserService) Logout(ctx context.Context, token string) error {
	expiry, err := util.TokenExpiry(token)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidToken, "invalid token", err)
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}

	digest := tokenDigest(token)
	if s.cache != nil {
		err := s.cache.Set(ctx, cache.TokenBlacklistKey(digest), "1", ttl)
		if err == nil {
			util.Logger.Info("用户注销，令牌已加入黑名单")
			return nil
		}
		util.Logger.Warn("写入令牌黑名单失败，使用本地黑名单", zap.Error(err))
	}

	s.blacklistMutex.Lock()
	s.tokenBlacklist[digest] = expiry
	s.blacklistMutex.Unlock()
	util.Logger.Info("用户注销，令牌已加入本地黑名单")
	return nil
}

func (s *UserService) IsTokenBlacklisted(ctx context.Context, token string) bool {
	digest := tokenDigest(token)
	if s.cache != nil {
		if _, err := s.cache.Get(ctx, cache.TokenBlacklistKey(digest)); err == nil {
			return true
		}
	}

	s.blacklistMutex.Lock()
	defer s.blacklistMutex.Unlock()
	expiry, exists := s.tokenBlacklist[digest]
	if !exists {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.tokenBlacklist, digest)
		return false
	}
	return true
}

// CreateAddress 保存收货地址
func (s *UserService) CreateAddress(ctx context.Context, address *model.UserAddress) error {
	if _, err := s.GetUserByID(ctx, address.UserID); err != nil {
		return err
	}
	if err := validateAddress(address); err != nil {
		return err
	}
	if address.Country == "" {
		address.Country = "India"
	}

	if err := s.userRepo.CreateAddress(ctx, address); err != nil {
		util.Logger.Error("数据库创建地址失败", zap.Error(err), zap.Int("user_id", address.UserID))
		return errors.Wrap(errors.ErrDatabase, "保存地址失败", err)
	}

	util.Logger.Info("地址创建成功",
		zap.Int("address_id", address.ID),
		zap.Int("user_id", address.UserID))
	return nil
}

func validateAddress(address *model.UserAddress) error {
	if strings.TrimSpace(address.FullName) == "" {
		return errors.New(errors.ErrValidation, "full name is required")
	}
	if !util.IsValidPhone(address.Phone) {
		return errors.New(errors.ErrValidation, "invalid phone number")
	}
	if address.Line1 == "" || address.City == "" || address.State == "" {
		return errors.New(errors.ErrValidation, "incomplete address")
	}
	if !util.IsValidPincode(address.Pincode) {
		return errors.New(errors.ErrValidation, "invalid pincode")
	}
	return nil
}

func (s *UserService) ListAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error) {
	addresses, err := s.userRepo.ListUserAddresses(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询地址失败", err)
	}
	return addresses, nil
}

type UserServiceInterface interface {
	Register(ctx context.Context, user *model.User) error
	Login(ctx context.Context, email, password string) (*model.User, error)
	GetUserByID(ctx context.Context, id int) (*model.User, error)
	Logout(ctx context.Context, token string) error
	IsTokenBlacklisted(ctx context.Context, token string) bool
	CreateAddress(ctx context.Context, address *model.UserAddress) error
	ListAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error)
}

// 确保 UserService 实现了 UserServiceInterface
var _ UserServiceInterface = (*UserService)(nil)
