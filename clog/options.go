package clog

import "io"

// ContextField 定义从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中存储的键
	FieldName string // 日志中的字段名
}

// Option 函数式选项
type Option func(*options)

type options struct {
	namespaceParts []string
	contextFields  []ContextField
	traceContext   bool
	writer         io.Writer // 非空时覆盖 Config.Output，测试用
}

// WithNamespace 设置根命名空间，多段以 "." 连接后输出为 namespace 字段
//
//	clog.WithNamespace("nsidd", "api") // namespace=nsidd.api
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 注册一条 Context 字段提取规则
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithRequestID 提取 api 层写入的 request_id
func WithRequestID() Option {
	return WithContextField(RequestIDKey, "request_id")
}

// WithTraceContext 从 Context 中的 OpenTelemetry Span 提取 trace_id 与 span_id
func WithTraceContext() Option {
	return func(o *options) {
		o.traceContext = true
	}
}

type requestIDKey struct{}

// RequestIDKey 是 request_id 在 Context 中的键
var RequestIDKey = requestIDKey{}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
