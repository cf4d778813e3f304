package product

import (
	"context"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ProductService 商品处理器依赖的服务
type ProductService interface {
	GetProduct(ctx context.Context, id, userID int) (*model.Product, error)
	Trending(ctx context.Context, limit int) ([]*model.Product, error)
	RecentlyViewed(ctx context.Context, userID, limit int) ([]*model.Product, error)
}

var _ ProductService = (*service.ProductService)(nil)

type ProductHandler struct {
	productService ProductService
}

func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{productService}
}

func limit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return n
}

func list(products []*model.Product) gin.H {
	if products == nil {
		products = []*model.Product{}
	}
	return gin.H{"products": products}
}

// GetProduct 商品详情，登录用户会记入最近浏览
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		errors.HandleError(c, errors.New(errors.ErrValidation, "无效的商品ID"))
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	p, err := h.productService.GetProduct(c.Request.Context(), id, userID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, p, "")
}

func (h *ProductHandler) Trending(c *gin.Context) {
	products, err := h.productService.Trending(c.Request.Context(), limit(c))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, list(products), "")
}

func (h *ProductHandler) RecentlyViewed(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	products, err := h.productService.RecentlyViewed(c.Request.Context(), userID, limit(c))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, list(products), "")
}
