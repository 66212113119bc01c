package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil", nil, true},
		{"disabled skips checks", &Config{}, false},
		{"enabled defaults", func() *Config { c := DefaultConfig("nsidd"); c.Enabled = true; return c }(), false},
		{"missing service", &Config{Enabled: true, Endpoint: "localhost:4317"}, true},
		{"missing endpoint", &Config{Enabled: true, ServiceName: "nsidd"}, true},
		{"bad sampler", &Config{Enabled: true, ServiceName: "nsidd", Endpoint: "x:4317", Sampler: 1.5}, true},
		{"bad batcher", &Config{Enabled: true, ServiceName: "nsidd", Endpoint: "x:4317", Batcher: "async"}, true},
		{"simple batcher", &Config{Enabled: true, ServiceName: "nsidd", Endpoint: "x:4317", Batcher: BatcherSimple}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Init(DefaultConfig("nsidd"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_Enabled(t *testing.T) {
	cfg := DefaultConfig("nsidd")
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"
	shutdown, err := Init(cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	// 导出端点不可达，只要求关闭不阻塞
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestDiscard(t *testing.T) {
	shutdown, err := Discard("nsidd")
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}

func TestMarkSpanError(t *testing.T) {
	tp, recorder := newRecorder(t)

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	MarkSpanError(ok, nil)
	ok.End()

	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	MarkSpanError(failed, errors.New("store down"))
	failed.End()

	MarkSpanError(nil, errors.New("ignored"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "store down", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}

func TestGinMiddleware(t *testing.T) {
	tp, recorder := newRecorder(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var handlerSpan oteltrace.SpanContext
	r := gin.New()
	r.Use(GinMiddleware("nsidd", tp))
	r.POST("/v1/namespaces/:namespace/ids", func(c *gin.Context) {
		handlerSpan = oteltrace.SpanContextFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/orders/ids", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, oteltrace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.Equal(t, spans[0].SpanContext().SpanID(), handlerSpan.SpanID())
}

func TestProvider(t *testing.T) {
	tp, _ := newRecorder(t)
	assert.Equal(t, oteltrace.TracerProvider(tp), Provider(tp))
	assert.Equal(t, otel.GetTracerProvider(), Provider(nil))
}
