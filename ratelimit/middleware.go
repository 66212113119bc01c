package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中提取限流键，返回空字符串时放行
type KeyFunc func(*gin.Context) string

// ParamKey 以路由参数作为限流键，如 ParamKey("namespace")
func ParamKey(name string) KeyFunc {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}

// ClientIPKey 以客户端 IP 作为限流键
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// CostFunc 返回一次请求消耗的令牌数，小于 1 时按 1 计
type CostFunc func(*gin.Context) int

// QueryCost 以查询参数的整数值作为令牌数，如批量分配的 count。
// 参数缺失或不是正整数时按 1 计，交给处理函数去拒绝
func QueryCost(name string) CostFunc {
	return func(c *gin.Context) int {
		n, err := strconv.Atoi(c.Query(name))
		if err != nil || n < 1 {
			return 1
		}
		return n
	}
}

// GinMiddleware 创建 gin 限流中间件，每个请求消耗一个令牌，被限流时返回 429
//
// 限流器出错时放行，限流不应影响 ID 分配的可用性。keyFunc 为 nil 时使用客户端 IP。
func GinMiddleware(limiter Limiter, limit Limit, keyFunc KeyFunc) gin.HandlerFunc {
	return GinMiddlewareN(limiter, limit, keyFunc, nil)
}

// GinMiddlewareN 与 GinMiddleware 相同，但每个请求消耗 costFunc 返回的令牌数
//
// 令牌数超过 burst 时按 burst 计，否则这个请求永远无法通过。costFunc 为 nil 时每个请求计 1。
func GinMiddlewareN(limiter Limiter, limit Limit, keyFunc KeyFunc, costFunc CostFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}
	header := fmt.Sprintf("rate=%g, burst=%d", limit.Rate, limit.Burst)
	retryAfter := "1"
	if limit.Rate > 0 && limit.Rate < 1 {
		retryAfter = strconv.Itoa(int(1/limit.Rate + 0.5))
	}

	return func(c *gin.Context) {
		if limiter == nil || !limit.valid() {
			c.Next()
			return
		}
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", header)
		allowed, err := limiter.AllowN(c.Request.Context(), key, limit, cost(c, costFunc, limit.Burst))
		if err != nil || allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   CodeRateLimited,
			"message": ErrRateLimitExceeded.Error(),
		})
	}
}

func cost(c *gin.Context, costFunc CostFunc, burst int) int {
	if costFunc == nil {
		return 1
	}
	n := costFunc(c)
	if n < 1 {
		return 1
	}
	if n > burst {
		return burst
	}
	return n
}
