package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/ratelimit"
	"github.com/ceyewan/nsid/testkit"
	"github.com/ceyewan/nsid/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// switchStore down 为 true 时 Reserve 返回存储不可用
type switchStore struct {
	idgen.Store
	down atomic.Bool
}

func (s *switchStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	if s.down.Load() {
		return 0, xerrors.WithCode(fmt.Errorf("%w: backend down", idgen.ErrStoreUnavailable), idgen.CodeStoreUnavailable)
	}
	return s.Store.Reserve(ctx, namespace, size)
}

// slowStore Provision 前等待 delay，started 在第一次 Provision 时关闭
type slowStore struct {
	idgen.Store
	delay   time.Duration
	once    sync.Once
	started chan struct{}
}

func (s *slowStore) Provision(ctx context.Context, namespace string) (bool, error) {
	s.once.Do(func() { close(s.started) })
	time.Sleep(s.delay)
	return s.Store.Provision(ctx, namespace)
}

type fixture struct {
	server  *Server
	handler http.Handler
	store   idgen.Store
}

func newFixture(t *testing.T, storeCfg *idgen.StoreConfig, cfg *idgen.Config, opts ...Option) *fixture {
	t.Helper()
	store, err := idgen.NewMemoryStore(storeCfg)
	require.NoError(t, err)
	return newFixtureWithStore(t, store, cfg, opts...)
}

func newFixtureWithStore(t *testing.T, store idgen.Store, cfg *idgen.Config, opts ...Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &idgen.Config{}
	}
	registry, err := idgen.NewRegistry(store, cfg, idgen.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	opts = append([]Option{WithLogger(testkit.NewLogger())}, opts...)
	server, err := New(registry, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	return &fixture{server: server, handler: server.Handler(), store: store}
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func (f *fixture) generate(t *testing.T, path string) generateResponse {
	t.Helper()
	w := f.do(http.MethodPost, path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp generateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, nil, &idgen.Config{BlockSize: 10})

	resp := f.generate(t, "/v1/namespaces/orders/ids")
	assert.Equal(t, "orders", resp.Namespace)
	assert.Equal(t, []string{"0"}, resp.IDs)

	resp = f.generate(t, "/v1/namespaces/orders/ids?count=12")
	require.Len(t, resp.IDs, 12)
	assert.Equal(t, "1", resp.IDs[0])
	assert.Equal(t, "c", resp.IDs[11])

	// 另一个 namespace 从 0 开始
	resp = f.generate(t, "/v1/namespaces/users/ids?count=2")
	assert.Equal(t, []string{"0", "1"}, resp.IDs)
}

func TestGenerate_ReusesHandle(t *testing.T) {
	f := newFixture(t, nil, &idgen.Config{BlockSize: 10})

	for i := 0; i < 25; i++ {
		f.generate(t, "/v1/namespaces/orders/ids")
	}

	// 25 个 ID 由同一句柄发放，只预留了 3 块
	next, exists, err := f.store.Peek(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(30), next)
}

func TestGenerate_Concurrent(t *testing.T) {
	f := newFixture(t, nil, &idgen.Config{BlockSize: 7, Encoding: idgen.EncodingDecimal})

	const workers, perWorker = 20, 25
	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				w := f.do(http.MethodPost, "/v1/namespaces/orders/ids")
				if w.Code != http.StatusOK {
					t.Errorf("unexpected status %d: %s", w.Code, w.Body.String())
					return
				}
				var resp generateResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				for _, id := range resp.IDs {
					if _, dup := seen[id]; dup {
						t.Errorf("duplicate id %s", id)
					}
					seen[id] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestGenerate_InvalidCount(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, count := range []string{"0", "-1", "1001", "abc", "1.5"} {
		w := f.do(http.MethodPost, "/v1/namespaces/orders/ids?count="+count)
		assert.Equal(t, http.StatusBadRequest, w.Code, "count=%s", count)
		assert.Equal(t, idgen.CodeInvalidInput, decodeError(t, w).Error, "count=%s", count)
	}

	resp := f.generate(t, "/v1/namespaces/orders/ids?count=1000")
	assert.Len(t, resp.IDs, 1000)
}

func TestGenerate_InvalidNamespace(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodPost, "/v1/namespaces/bad!ns/ids")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, idgen.CodeInvalidNamespace, decodeError(t, w).Error)

	w = f.do(http.MethodGet, "/v1/namespaces/bad!ns")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, idgen.CodeInvalidNamespace, decodeError(t, w).Error)
}

func TestGenerate_RejectPolicy(t *testing.T) {
	store, err := idgen.NewMemoryStore(nil)
	require.NoError(t, err)
	_, err = store.Provision(context.Background(), "orders")
	require.NoError(t, err)

	f := newFixtureWithStore(t, store, &idgen.Config{ReusePolicy: idgen.ReusePolicyReject})

	w := f.do(http.MethodPost, "/v1/namespaces/orders/ids")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, idgen.CodeNamespaceAlreadyInitialized, decodeError(t, w).Error)

	// 新 namespace 不受影响
	resp := f.generate(t, "/v1/namespaces/users/ids")
	assert.Equal(t, []string{"0"}, resp.IDs)
}

func TestGenerate_Overflow(t *testing.T) {
	f := newFixture(t, &idgen.StoreConfig{Driver: idgen.DriverMemory, MaxValue: 5}, &idgen.Config{BlockSize: 2})

	resp := f.generate(t, "/v1/namespaces/orders/ids?count=4")
	assert.Equal(t, []string{"0", "1", "2", "3"}, resp.IDs)

	for i := 0; i < 2; i++ {
		w := f.do(http.MethodPost, "/v1/namespaces/orders/ids")
		assert.Equal(t, http.StatusInsufficientStorage, w.Code)
		assert.Equal(t, idgen.CodeCounterOverflow, decodeError(t, w).Error)
	}
}

func TestGenerate_StoreUnavailable(t *testing.T) {
	memory, err := idgen.NewMemoryStore(nil)
	require.NoError(t, err)
	store := &switchStore{Store: memory}
	f := newFixtureWithStore(t, store, &idgen.Config{BlockSize: 2})

	resp := f.generate(t, "/v1/namespaces/orders/ids?count=2")
	assert.Equal(t, []string{"0", "1"}, resp.IDs)

	store.down.Store(true)
	w := f.do(http.MethodPost, "/v1/namespaces/orders/ids")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, idgen.CodeStoreUnavailable, decodeError(t, w).Error)

	// 恢复后继续分配，失败期间没有消耗任何值
	store.down.Store(false)
	resp = f.generate(t, "/v1/namespaces/orders/ids")
	assert.Equal(t, []string{"2"}, resp.IDs)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, nil, &idgen.Config{BlockSize: 10})

	w := f.do(http.MethodGet, "/v1/namespaces/orders")
	require.Equal(t, http.StatusOK, w.Code)
	var resp describeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, describeResponse{Namespace: "orders"}, resp)

	f.generate(t, "/v1/namespaces/orders/ids?count=3")

	w = f.do(http.MethodGet, "/v1/namespaces/orders")
	require.Equal(t, http.StatusOK, w.Code)
	resp = describeResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(10), resp.Next)
	assert.True(t, resp.Exists)
	require.NotNil(t, resp.Lease)
	assert.NotEmpty(t, resp.Lease.Handle)
	assert.Equal(t, int64(0), resp.Lease.Start)
	assert.Equal(t, int64(10), resp.Lease.Size)
	assert.Equal(t, int64(3), resp.Lease.Next)
	assert.Equal(t, int64(7), resp.Lease.Remaining)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	var healthy atomic.Bool
	healthy.Store(true)
	f = newFixture(t, nil, nil,
		WithHealthCheck(func(context.Context) error { return nil }),
		WithHealthCheck(func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("redis: connection refused")
		}))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz").Code)
	healthy.Store(false)
	w = f.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewStandalone(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	f := newFixture(t, nil, nil, WithRateLimiter(limiter, ratelimit.Limit{Rate: 0.001, Burst: 2}))

	f.generate(t, "/v1/namespaces/orders/ids")
	f.generate(t, "/v1/namespaces/orders/ids")
	w := f.do(http.MethodPost, "/v1/namespaces/orders/ids")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.CodeRateLimited, decodeError(t, w).Error)

	// 限流按 namespace 计数，查询接口不受限
	f.generate(t, "/v1/namespaces/users/ids")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/namespaces/orders").Code)
}

func TestRateLimit_ChargesBatchCount(t *testing.T) {
	limiter, err := ratelimit.NewStandalone(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	f := newFixture(t, nil, nil, WithRateLimiter(limiter, ratelimit.Limit{Rate: 0.001, Burst: 10}))

	f.generate(t, "/v1/namespaces/orders/ids?count=8")
	w := f.do(http.MethodPost, "/v1/namespaces/orders/ids?count=5")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	f.generate(t, "/v1/namespaces/orders/ids?count=2")
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/v1/namespaces/orders/ids").Code)
}

func TestGenerate_NamespaceLimit(t *testing.T) {
	f := newFixture(t, nil, &idgen.Config{MaxNamespaces: 1})

	f.generate(t, "/v1/namespaces/orders/ids")
	w := f.do(http.MethodPost, "/v1/namespaces/users/ids")
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Equal(t, idgen.CodeNamespaceLimit, decodeError(t, w).Error)

	f.generate(t, "/v1/namespaces/orders/ids")
}

// 首个请求被取消时，同时加载同一 namespace 的请求仍然成功
func TestGenerate_LoadSurvivesCanceledRequest(t *testing.T) {
	mem, err := idgen.NewMemoryStore(nil)
	require.NoError(t, err)
	store := &slowStore{Store: mem, delay: 100 * time.Millisecond, started: make(chan struct{})}
	f := newFixtureWithStore(t, store, &idgen.Config{BlockSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/orders/ids", nil).WithContext(ctx)
		f.handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-store.started

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		second <- f.do(http.MethodPost, "/v1/namespaces/orders/ids")
	}()
	cancel()
	<-done

	w := <-second
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWithTracing(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store, err := idgen.NewStore(ctx, &idgen.StoreConfig{}, idgen.Backends{}, idgen.WithTracerProvider(tp))
	require.NoError(t, err)
	registry, err := idgen.NewRegistry(store, &idgen.Config{}, idgen.WithTracerProvider(tp))
	require.NoError(t, err)
	server, err := New(registry, nil, WithTracing("nsidd-test", tp))
	require.NoError(t, err)
	t.Cleanup(server.Close)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/namespaces/orders/ids", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var serverSpan, refill sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		switch {
		case s.SpanKind() == oteltrace.SpanKindServer:
			serverSpan = s
		case s.Name() == "idgen.lease.refill":
			refill = s
		}
	}
	require.NotNil(t, serverSpan)
	require.NotNil(t, refill)
	assert.Equal(t, serverSpan.SpanContext().TraceID(), refill.SpanContext().TraceID())
	assert.Equal(t, serverSpan.SpanContext().SpanID(), refill.Parent().SpanID())
}

func TestWithMeter(t *testing.T) {
	f := newFixture(t, nil, nil, WithMeter(testkit.NewMeter(), "nsidd-test"))
	require.NotNil(t, f.server.httpMetrics)

	f.generate(t, "/v1/namespaces/orders/ids")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/unknown").Code)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	store, err := idgen.NewMemoryStore(nil)
	require.NoError(t, err)
	registry, err := idgen.NewRegistry(store, &idgen.Config{})
	require.NoError(t, err)

	_, err = New(registry, &Config{MaxBatch: -1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	cfg := &Config{}
	server, err := New(registry, cfg)
	require.NoError(t, err)
	defer server.Close()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultMaxBatch, cfg.MaxBatch)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{xerrors.WithCode(idgen.ErrInvalidNamespace, idgen.CodeInvalidNamespace), http.StatusBadRequest, idgen.CodeInvalidNamespace},
		{xerrors.Wrap(xerrors.ErrInvalidInput, "bad"), http.StatusBadRequest, idgen.CodeInvalidInput},
		{xerrors.WithCode(idgen.ErrNamespaceAlreadyInitialized, idgen.CodeNamespaceAlreadyInitialized), http.StatusConflict, idgen.CodeNamespaceAlreadyInitialized},
		{xerrors.WithCode(idgen.ErrStoreUnavailable, idgen.CodeStoreUnavailable), http.StatusServiceUnavailable, idgen.CodeStoreUnavailable},
		{xerrors.WithCode(idgen.ErrCounterOverflow, idgen.CodeCounterOverflow), http.StatusInsufficientStorage, idgen.CodeCounterOverflow},
		{xerrors.WithCode(idgen.ErrNamespaceLimit, idgen.CodeNamespaceLimit), http.StatusInsufficientStorage, idgen.CodeNamespaceLimit},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		status, code := statusOf(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
