package middleware

import (
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/util"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// luaSlidingWindow Redis 滑动窗口限流
// KEYS[1]=限流key，ARGV[1]=当前毫秒时间戳，ARGV[2]=窗口起点，ARGV[3]=窗口毫秒数，ARGV[4]=请求标识，ARGV[5]=上限
// 返回窗口内请求数，超限返回 -1
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]
local limit = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
end
return -1
`

var slidingWindow = rd.NewScript(luaSlidingWindow)

// RateLimitMiddleware 按用户（未登录时按 IP）限流，Redis 不可用时放行
func RateLimitMiddleware(rdb rd.Scripter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if userID, ok := CurrentUserID(c); ok {
			subject = "user:" + strconv.Itoa(userID)
		}
		key := cache.RateLimitKey(scope, subject)

		now := time.Now()
		nowMs := now.UnixMilli()
		windowMs := window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := slidingWindow.Run(c.Request.Context(), rdb, []string{key},
			nowMs, nowMs-windowMs, windowMs, member, limit).Int()
		if err != nil {
			util.Logger.Warn("限流检查失败，放行请求", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		if res < 0 {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			errors.HandleError(c, errors.New(errors.ErrTooManyRequests, "请求过于频繁，请稍后再试"))
			c.Abort()
			return
		}
		c.Next()
	}
}
