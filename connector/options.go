package connector

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tp     oteltrace.TracerProvider
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置 Logger，内部派生 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置 Meter，用于记录连接尝试次数
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithTracerProvider 为客户端的每条命令或 SQL 语句创建 Span，未设置时不做埋点
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.tp = tp
	}
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
