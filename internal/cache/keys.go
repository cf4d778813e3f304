package cache

import "fmt"

// TrendingProductsKey 热门商品有序集合
const TrendingProductsKey = "store:products:trending"

// ProductViewsKey 单个商品浏览计数
func ProductViewsKey(productID int) string {
	return fmt.Sprintf("store:product:views:%d", productID)
}

// RecentlyViewedKey 用户最近浏览列表
func RecentlyViewedKey(userID int) string {
	return fmt.Sprintf("store:user:recently_viewed:%d", userID)
}

// CheckoutIdempotencyKey 将客户端幂等键映射到已创建的订单
func CheckoutIdempotencyKey(userID int, idemKey string) string {
	return fmt.Sprintf("store:idem:checkout:%d:%s", userID, idemKey)
}

// RateLimitKey 限流计数键
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("store:rate_limit:%s:%s", scope, subject)
}

// TokenBlacklistKey 已注销令牌，键中使用令牌摘要
func TokenBlacklistKey(digest string) string {
	return "store:auth:blacklist:" + digest
}

// NotificationSentKey 已投递的通知事件，用于消费端去重
func NotificationSentKey(eventID string) string {
	return "store:notify:sent:" + eventID
}
