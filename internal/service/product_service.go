package service

import (
	"context"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	recentlyViewedMax = 20
	recentlyViewedTTL = 30 * 24 * time.Hour
)

// ProductService 商品详情与浏览记录，缓存故障不影响读取
type ProductService struct {
	products interfaces.ProductRepository
	cache    cache.Cache
}

func NewProductService(products interfaces.ProductRepository, c cache.Cache) *ProductService {
	return &ProductService{products: products, cache: c}
}

// GetProduct 查询商品并记录浏览，userID 为 0 表示匿名访问
func (s *ProductService) GetProduct(ctx context.Context, id, userID int) (*model.Product, error) {
	product, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询商品失败", err)
	}
	if product == nil || !product.IsActive {
		return nil, errors.New(errors.ErrProductNotFound, "商品不存在")
	}
	s.recordView(ctx, product.ID, userID)
	return product, nil
}

func (s *ProductService) recordView(ctx context.Context, productID, userID int) {
	if s.cache == nil {
		return
	}
	member := strconv.Itoa(productID)
	if _, err := s.cache.Increment(ctx, cache.ProductViewsKey(productID)); err != nil {
		util.Logger.Warn("记录商品浏览失败", zap.Error(err), zap.Int("product_id", productID))
		return
	}
	if err := s.cache.IncrementScore(ctx, cache.TrendingProductsKey, member, 1); err != nil {
		util.Logger.Warn("更新热门商品失败", zap.Error(err), zap.Int("product_id", productID))
	}
	if userID > 0 {
		if err := s.cache.PushRecent(ctx, cache.RecentlyViewedKey(userID), member, recentlyViewedMax, recentlyViewedTTL); err != nil {
			util.Logger.Warn("记录最近浏览失败", zap.Error(err), zap.Int("user_id", userID))
		}
	}
}

// Trending 按浏览量返回热门商品
func (s *ProductService) Trending(ctx context.Context, limit int) ([]*model.Product, error) {
	if s.cache == nil {
		return []*model.Product{}, nil
	}
	members, err := s.cache.TopMembers(ctx, cache.TrendingProductsKey, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCache, "读取热门商品失败", err)
	}
	return s.loadInOrder(ctx, cache.ParseIDs(members))
}

// RecentlyViewed 用户最近浏览的商品，最新的在前
func (s *ProductService) RecentlyViewed(ctx context.Context, userID, limit int) ([]*model.Product, error) {
	if s.cache == nil {
		return []*model.Product{}, nil
	}
	values, err := s.cache.Recent(ctx, cache.RecentlyViewedKey(userID), clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCache, "读取最近浏览失败", err)
	}
	return s.loadInOrder(ctx, cache.ParseIDs(values))
}

// loadInOrder 按给定 ID 顺序返回商品，跳过已下架的商品
func (s *ProductService) loadInOrder(ctx context.Context, ids []int) ([]*model.Product, error) {
	out := make([]*model.Product, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询商品失败", err)
	}
	byID := make(map[int]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if p, ok := byID[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > recentlyViewedMax {
		return recentlyViewedMax
	}
	return limit
}
