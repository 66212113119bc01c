package trace

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 组件内 Span 属性键
const (
	AttrNamespace   = "nsid.namespace"
	AttrDriver      = "nsid.store.driver"
	AttrSize        = "nsid.reserve.size"
	AttrStart       = "nsid.reserve.start"
	AttrGeneratorID = "nsid.generator.id"
)

// Provider 返回 tp，为 nil 时返回全局 TracerProvider
func Provider(tp oteltrace.TracerProvider) oteltrace.TracerProvider {
	if tp == nil {
		return otel.GetTracerProvider()
	}
	return tp
}

// MarkSpanError err 不为 nil 时记录错误并把 Span 标记为失败
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
