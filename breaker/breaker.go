// Package breaker 提供按 key 隔离的熔断器，基于 gobreaker 实现。
//
// nsid 中用于保护计数器存储：每个存储驱动一个 key，存储连续失败时快速失败，
// 不再把请求压到已经不可用的后端上，Timeout 之后进入半开状态探测恢复。
//
//	brk, _ := breaker.New(&breaker.Config{
//		MaxRequests:     1,
//		Timeout:         10 * time.Second,
//		FailureRatio:    0.6,
//		MinimumRequests: 10,
//	}, breaker.WithLogger(logger), breaker.WithMeter(meter))
//
//	v, err := brk.Execute(ctx, "redis", func() (any, error) {
//		return store.Reserve(ctx, ns, size)
//	})
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/xerrors"
)

// Breaker 熔断器接口
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn
	//
	// 熔断器打开时不执行 fn，返回 ErrOpenState（或降级函数的结果）。
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 对应的熔断器状态，未使用过的 key 视为 StateClosed
	State(key string) (State, error)
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// MaxRequests 半开状态下允许通过的探测请求数（默认 1）
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// Interval 闭合状态下清空统计的周期，0 表示不清空
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Timeout 打开状态持续时间（默认 60s）
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureRatio 触发熔断的失败率（默认 0.6）
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio"`

	// MinimumRequests 统计窗口内请求数达到该值后才计算失败率（默认 10）
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

func (c *Config) validate() error {
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "breaker: failure_ratio %v out of [0,1]", c.FailureRatio)
	}
	if c.Timeout < 0 || c.Interval < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: negative duration")
	}
	return nil
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	opt := defaultOptions()
	for _, o := range opts {
		o(&opt)
	}

	m, err := newBreakerMetrics(opt.meter)
	if err != nil {
		return nil, err
	}

	opt.logger.Info("circuit breaker created",
		clog.Int("max_requests", int(c.MaxRequests)),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("failure_ratio", c.FailureRatio),
		clog.Int("minimum_requests", int(c.MinimumRequests)))

	return &circuitBreaker{
		cfg:          &c,
		logger:       opt.logger,
		metrics:      m,
		fallback:     opt.fallback,
		isSuccessful: opt.isSuccessful,
	}, nil
}
