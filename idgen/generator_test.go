package idgen

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/nsid/testkit"
	"github.com/ceyewan/nsid/trace"
)

func TestGenerator_SequentialUnique(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), &Config{BlockSize: 64})

	gen, err := r.Generator(ctx, "orders")
	require.NoError(t, err)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := gen.GenerateID(ctx)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestGenerator_ManyHandlesUnique(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), nil)

	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		gen, err := r.Generator(ctx, "users")
		require.NoError(t, err)
		id, err := gen.GenerateID(ctx)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestGenerator_ConcurrentHandlesUnique(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), &Config{BlockSize: 7})

	const handles, perHandle = 500, 20
	results := make(chan string, handles*perHandle)

	var wg sync.WaitGroup
	for i := 0; i < handles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen, err := r.Generator(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < perHandle; j++ {
				id, err := gen.GenerateID(ctx)
				if !assert.NoError(t, err) {
					return
				}
				results <- id
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]struct{}, handles*perHandle)
	for id := range results {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, handles*perHandle)
}

func TestGenerator_FreshNamespaceTwice(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), &Config{ReusePolicy: ReusePolicyReject})
	ns := fmt.Sprintf("ns_%d", time.Now().UnixNano())

	for round := 0; round < 2; round++ {
		seen := make(map[string]struct{}, 100)
		for i := 0; i < 100; i++ {
			gen, err := r.Generator(ctx, ns)
			require.NoError(t, err)
			id, err := gen.GenerateID(ctx)
			require.NoError(t, err)
			seen[id] = struct{}{}
		}
		assert.Len(t, seen, 100, "round %d", round)
	}
}

func TestGenerator_RefillAcrossBlockBoundary(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newMemoryStore(t)}
	r := newRegistry(t, store, &Config{BlockSize: 2})

	gen, err := r.Generator(ctx, "small")
	require.NoError(t, err)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := gen.GenerateID(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, int64(3), store.reserves.Load())
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, decodeAll(t, r.encoder, "small", ids))
	assert.Equal(t, LeaseInfo{Start: 4, Size: 2, Next: 1}, gen.Lease())
	assert.Equal(t, int64(1), gen.Lease().Remaining())
}

func TestGenerator_HandlesDoNotShareLeases(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), &Config{BlockSize: 10, Encoding: EncodingDecimal})

	a, err := r.Generator(ctx, "ns")
	require.NoError(t, err)
	b, err := r.Generator(ctx, "ns")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, LeaseInfo{}, a.Lease())

	idA, err := a.GenerateID(ctx)
	require.NoError(t, err)
	idB, err := b.GenerateID(ctx)
	require.NoError(t, err)

	assert.Equal(t, "0", idA)
	assert.Equal(t, "10", idB)
}

func TestGenerator_ConcurrentCallsSingleRefill(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newMemoryStore(t), delay: 5 * time.Millisecond}
	r := newRegistry(t, store, &Config{BlockSize: 10})

	gen, err := r.Generator(ctx, "busy")
	require.NoError(t, err)

	const callers, perCaller = 16, 25
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				id, err := gen.GenerateID(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, callers*perCaller)
	assert.Equal(t, 1, store.peakInflight())
	assert.Equal(t, int64(callers*perCaller/10), store.reserves.Load())
}

func TestGenerator_StoreUnavailableConsumesNothing(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryStore(t)
	store := &flakyStore{Store: inner}
	r := newRegistry(t, store, &Config{BlockSize: 3, Encoding: EncodingDecimal})

	gen, err := r.Generator(ctx, "flaky")
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := gen.GenerateID(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	store.down.Store(true)
	for i := 0; i < 3; i++ {
		_, err := gen.GenerateID(ctx)
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, err, errBackendDown)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, CodeStoreUnavailable, codeOf(err))
	}
	assert.Equal(t, LeaseInfo{Start: 0, Size: 3, Next: 3}, gen.Lease())

	next, _, err := inner.Peek(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)

	store.down.Store(false)
	for i := 0; i < 3; i++ {
		id, err := gen.GenerateID(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5"}, ids)
}

func TestGenerator_OverflowIsSticky(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(&StoreConfig{MaxValue: 4})
	require.NoError(t, err)
	counting := &countingStore{Store: store}
	r := newRegistry(t, counting, &Config{BlockSize: 2})

	gen, err := r.Generator(ctx, "tiny")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := gen.GenerateID(ctx)
		require.NoError(t, err)
	}

	_, err = gen.GenerateID(ctx)
	require.ErrorIs(t, err, ErrCounterOverflow)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, CodeCounterOverflow, codeOf(err))
	reserves := counting.reserves.Load()

	_, err = gen.GenerateID(ctx)
	require.ErrorIs(t, err, ErrCounterOverflow)
	assert.Equal(t, reserves, counting.reserves.Load(), "dead handle must not touch the store")

	// 新句柄同样拿不到值
	other, err := r.Generator(ctx, "tiny")
	require.NoError(t, err)
	_, err = other.GenerateID(ctx)
	require.ErrorIs(t, err, ErrCounterOverflow)
}

func TestGenerator_GenerateN(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newMemoryStore(t), &Config{BlockSize: 4, Encoding: EncodingDecimal})

	gen, err := r.Generator(ctx, "batch")
	require.NoError(t, err)

	ids, err := gen.GenerateN(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, ids)

	id, err := gen.GenerateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", id)

	_, err = gen.GenerateN(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenerator_GenerateN_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newMemoryStore(t)}
	r := newRegistry(t, store, &Config{BlockSize: 2, Encoding: EncodingDecimal})

	gen, err := r.Generator(ctx, "partial")
	require.NoError(t, err)
	_, err = gen.GenerateID(ctx)
	require.NoError(t, err)

	store.down.Store(true)
	ids, err := gen.GenerateN(ctx, 3)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, ids)

	// 失败批次中取出的 "1" 被丢弃，不会再次发放
	store.down.Store(false)
	id, err := gen.GenerateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", id)
}

func TestGenerator_ContextCanceled(t *testing.T) {
	r := newRegistry(t, newMemoryStore(t), nil)
	gen, err := r.Generator(context.Background(), "ctx")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.GenerateID(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_Metrics(t *testing.T) {
	ctx := context.Background()
	meter := newTestMeter(t)
	store, err := NewStore(ctx, &StoreConfig{Driver: DriverMemory, MaxValue: 16}, Backends{}, WithMeter(meter))
	require.NoError(t, err)
	r, err := NewRegistry(store, &Config{BlockSize: 5}, WithLogger(testkit.NewLogger()), WithMeter(meter))
	require.NoError(t, err)

	gen, err := r.Generator(ctx, "metered")
	require.NoError(t, err)
	_, err = gen.GenerateN(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen.Lease().Next)

	body := scrapeMetrics(t, meter)
	assert.Equal(t, 12.0, metricValue(t, body, MetricIDsGenerated))
	assert.Equal(t, 3.0, metricValue(t, body, MetricLeaseRefills, `outcome="success"`))
	assert.Equal(t, 3.0, metricValue(t, body, MetricStoreReserve, `driver="memory"`, `outcome="success"`))
	assert.Contains(t, body, MetricStoreReserveDuration+"_bucket{")

	// 计数器已到 15，再预留 5 个会越过上限 16
	other, err := r.Generator(ctx, "metered")
	require.NoError(t, err)
	_, err = other.GenerateID(ctx)
	require.ErrorIs(t, err, ErrCounterOverflow)

	body = scrapeMetrics(t, meter)
	assert.Equal(t, 12.0, metricValue(t, body, MetricIDsGenerated))
	assert.Equal(t, 1.0, metricValue(t, body, MetricLeaseRefills, `outcome="overflow"`))
	assert.Equal(t, 1.0, metricValue(t, body, MetricStoreReserve, `driver="memory"`, `outcome="overflow"`))
}

func TestGenerator_Tracing(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store, err := NewStore(ctx, &StoreConfig{Driver: DriverMemory, MaxValue: 4}, Backends{}, WithTracerProvider(tp))
	require.NoError(t, err)
	r, err := NewRegistry(store, &Config{BlockSize: 4}, WithTracerProvider(tp))
	require.NoError(t, err)

	gen, err := r.Generator(ctx, "traced")
	require.NoError(t, err)
	_, err = gen.GenerateN(ctx, 4)
	require.NoError(t, err)
	_, err = gen.GenerateID(ctx)
	require.ErrorIs(t, err, ErrCounterOverflow)

	var refills, reserves []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "idgen.lease.refill":
			refills = append(refills, s)
		case "idgen.store.reserve":
			reserves = append(reserves, s)
		}
	}
	require.Len(t, refills, 2)
	require.Len(t, reserves, 2)

	for i := range refills {
		assert.Equal(t, refills[i].SpanContext().SpanID(), reserves[i].Parent().SpanID())
		assert.Equal(t, refills[i].SpanContext().TraceID(), reserves[i].SpanContext().TraceID())
	}

	attrs := make(map[string]any)
	for _, kv := range reserves[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, DriverMemory, attrs[trace.AttrDriver])
	assert.Equal(t, "traced", attrs[trace.AttrNamespace])
	assert.Equal(t, int64(4), attrs[trace.AttrSize])
	assert.Equal(t, int64(0), attrs[trace.AttrStart])

	assert.Equal(t, codes.Unset, refills[0].Status().Code)
	assert.Equal(t, codes.Error, refills[1].Status().Code)
	assert.Equal(t, codes.Error, reserves[1].Status().Code)
}
