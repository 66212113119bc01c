package idgen

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/xerrors"
)

func codeOf(err error) string {
	return xerrors.GetCode(err)
}

func newMemoryStore(t *testing.T) Store {
	t.Helper()
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)
	return store
}

func newRegistry(t *testing.T, store Store, cfg *Config) *Registry {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	r, err := NewRegistry(store, cfg)
	require.NoError(t, err)
	return r
}

// countingStore 统计调用次数，可选地在每次调用前等待
type countingStore struct {
	Store
	delay      time.Duration
	reserves   atomic.Int64
	provisions atomic.Int64

	mu       sync.Mutex
	inflight int
	peak     int
}

func (s *countingStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	s.reserves.Add(1)
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.Store.Reserve(ctx, namespace, size)
}

func (s *countingStore) Provision(ctx context.Context, namespace string) (bool, error) {
	s.provisions.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.Store.Provision(ctx, namespace)
}

func (s *countingStore) peakInflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// flakyStore 在 down 为 true 时所有调用返回 ErrStoreUnavailable，不触碰内部存储
type flakyStore struct {
	Store
	down  atomic.Bool
	calls atomic.Int64
}

var errBackendDown = errors.New("connection refused")

func (s *flakyStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	s.calls.Add(1)
	if s.down.Load() {
		return 0, storeUnavailable(errBackendDown, "flaky reserve %s", namespace)
	}
	return s.Store.Reserve(ctx, namespace, size)
}

func (s *flakyStore) Provision(ctx context.Context, namespace string) (bool, error) {
	s.calls.Add(1)
	if s.down.Load() {
		return false, storeUnavailable(errBackendDown, "flaky provision %s", namespace)
	}
	return s.Store.Provision(ctx, namespace)
}

// decodeAll 把 ID 解码回整数
func decodeAll(t *testing.T, enc *Encoder, ns string, ids []string) []int64 {
	t.Helper()
	values := make([]int64, len(ids))
	for i, id := range ids {
		v, err := enc.Decode(ns, id)
		require.NoError(t, err)
		values[i] = v
	}
	return values
}

func newTestMeter(t *testing.T) metrics.Meter {
	t.Helper()
	meter, err := metrics.New(metrics.NewDevDefaultConfig("nsid-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter
}

func scrapeMetrics(t *testing.T, meter metrics.Meter) string {
	t.Helper()
	w := httptest.NewRecorder()
	metrics.Handler(meter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// metricValue 返回名为 name 且包含全部 labels（形如 outcome="success"）的样本值，
// 找不到时返回 0
func metricValue(t *testing.T, body, name string, labels ...string) float64 {
	t.Helper()
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		series, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		metric, _, _ := strings.Cut(series, "{")
		if metric != name {
			continue
		}
		matched := true
		for _, l := range labels {
			if !strings.Contains(series, l) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		require.NoError(t, err, line)
		return v
	}
	return 0
}
