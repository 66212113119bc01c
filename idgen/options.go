package idgen

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/trace"
)

// tracerName idgen 创建 Span 时使用的 instrumentation 名称
const tracerName = "github.com/ceyewan/nsid/idgen"

// Option 组件初始化选项，Registry 与各存储驱动共用
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tp     oteltrace.TracerProvider
}

// WithLogger 设置 Logger，内部派生 "idgen" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("idgen")
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

// WithTracerProvider 设置创建 Span 的 TracerProvider，默认使用全局 Provider
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tp = tp
		}
	}
}

func (o *options) tracer() oteltrace.Tracer {
	return trace.Provider(o.tp).Tracer(tracerName)
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
