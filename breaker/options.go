package breaker

import (
	"context"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
)

// Option 熔断器选项
type Option func(*options)

// FallbackFunc 熔断打开时的降级函数，返回 nil 表示降级成功
type FallbackFunc func(ctx context.Context, key string, err error) error

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	fallback     FallbackFunc
	isSuccessful func(err error) bool
}

func defaultOptions() options {
	return options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
}

// WithLogger 设置 Logger，内部派生 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithFallback 设置降级函数
func WithFallback(fallback FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fallback
	}
}

// WithIsSuccessful 自定义哪些错误不计入失败
//
// 默认只有 err == nil 计为成功。调用方可以把业务错误（如参数非法）排除在外，
// 避免它们触发熔断。
func WithIsSuccessful(fn func(err error) bool) Option {
	return func(o *options) {
		o.isSuccessful = fn
	}
}
