package api

import (
	"context"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/ratelimit"
)

// Option Server 初始化选项
type Option func(*options)

// HealthCheck 健康检查函数，返回错误时 /healthz 响应 503
type HealthCheck func(ctx context.Context) error

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	service      string
	limiter      ratelimit.Limiter
	limit        ratelimit.Limit
	health       HealthCheck
	tracing      bool
	traceService string
	tp           oteltrace.TracerProvider
}

// WithLogger 设置 Logger，内部派生 "api" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("api")
		}
	}
}

// WithMeter 启用 HTTP RED 指标，service 作为指标的 service 标签
func WithMeter(meter metrics.Meter, service string) Option {
	return func(o *options) {
		o.meter = meter
		o.service = service
	}
}

// WithTracing 为每个请求创建服务端 Span，tp 为 nil 时使用全局 TracerProvider
func WithTracing(service string, tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.tracing = true
		o.traceService = service
		o.tp = tp
	}
}

// WithRateLimiter 对 ID 生成接口按 namespace 限流
func WithRateLimiter(limiter ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(o *options) {
		o.limiter = limiter
		o.limit = limit
	}
}

// WithHealthCheck 设置 /healthz 的探测逻辑，可多次调用，依次执行
func WithHealthCheck(check HealthCheck) Option {
	return func(o *options) {
		if check == nil {
			return
		}
		prev := o.health
		if prev == nil {
			o.health = check
			return
		}
		o.health = func(ctx context.Context) error {
			if err := prev(ctx); err != nil {
				return err
			}
			return check(ctx)
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
