// Package ratelimit 为 nsid 的 HTTP 接口提供按 namespace 的令牌桶限流。
//
// 支持两种模式：
//   - standalone：基于 golang.org/x/time/rate 的进程内限流，每个 nsidd 实例独立计数
//   - distributed：基于 Redis + Lua 的限流，多个 nsidd 实例共享同一个桶
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{
//	    Mode:  ratelimit.ModeStandalone,
//	    Rate:  1000,
//	    Burst: 2000,
//	}, nil, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//
//	r.POST("/v1/namespaces/:namespace/ids",
//	    ratelimit.GinMiddleware(limiter, cfg.Limit(), ratelimit.ParamKey("namespace")),
//	    handler)
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/connector"
)

// 限流模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Close 释放后台资源，Redis 连接由 connector 管理
	Close() error
}

// Config 限流配置
type Config struct {
	// Enabled 为 false 时 HTTP 层不挂载限流中间件
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Mode standalone（默认）或 distributed，distributed 需要 Redis 连接
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Rate 每个 namespace 每秒允许的请求数
	Rate float64 `json:"rate" yaml:"rate" mapstructure:"rate"`

	// Burst 每个 namespace 的突发容量，默认等于 Rate 向上取整
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	// Prefix distributed 模式下的 Redis key 前缀（默认 "nsid:ratelimit:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// CleanupInterval standalone 模式清理空闲桶的间隔（默认 1 分钟）
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// IdleTimeout standalone 模式下桶的空闲超时（默认 5 分钟）
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Burst == 0 && c.Rate > 0 {
		c.Burst = int(c.Rate)
		if float64(c.Burst) < c.Rate {
			c.Burst++
		}
	}
	if c.Prefix == "" {
		c.Prefix = "nsid:ratelimit:"
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// Validate 补齐默认值并校验，未启用时只补默认值
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	if !c.Enabled {
		return nil
	}
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
	default:
		return invalidConfig("unsupported mode %q", c.Mode)
	}
	if !c.Limit().valid() {
		return ErrInvalidLimit
	}
	return nil
}

// Limit 返回配置对应的令牌桶规则
func (c *Config) Limit() Limit {
	return Limit{Rate: c.Rate, Burst: c.Burst}
}

// New 按 cfg.Mode 创建限流器，distributed 模式要求 redisConn 非空
func New(cfg *Config, redisConn connector.RedisConnector, opts ...Option) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeDistributed:
		return NewDistributed(redisConn, cfg, opts...)
	default:
		return NewStandalone(cfg, opts...)
	}
}

// NewStandalone 创建进程内限流器
func NewStandalone(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	o := applyOptions(opts)
	return newStandalone(cfg, o.logger, o.meter), nil
}

// NewDistributed 创建基于 Redis 的限流器
func NewDistributed(redisConn connector.RedisConnector, cfg *Config, opts ...Option) (Limiter, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	o := applyOptions(opts)
	o.logger.Info("distributed rate limiter created", clog.String("prefix", cfg.Prefix))
	return newDistributed(cfg, redisConn, o.logger, o.meter), nil
}
