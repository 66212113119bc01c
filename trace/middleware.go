package trace

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// GinMiddleware 为每个请求创建服务端 Span，并从请求头中提取上游的 traceparent
//
// tp 为 nil 时使用全局 TracerProvider。
func GinMiddleware(serviceName string, tp oteltrace.TracerProvider) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithTracerProvider(Provider(tp)))
}
