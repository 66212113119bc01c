package breaker

import (
	"context"

	"github.com/ceyewan/nsid/metrics"
)

const (
	MetricRequestsTotal = "breaker_requests_total"
	MetricStateChanges  = "breaker_state_changes_total"

	LabelKey       = "key"
	LabelResult    = "result"
	LabelFromState = "from_state"
	LabelToState   = "to_state"
)

// 结果取值
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

type breakerMetrics struct {
	requests     metrics.Counter
	stateChanges metrics.Counter
}

func newBreakerMetrics(meter metrics.Meter) (*breakerMetrics, error) {
	requests, err := meter.Counter(MetricRequestsTotal, "Requests passed through the circuit breaker.")
	if err != nil {
		return nil, err
	}
	stateChanges, err := meter.Counter(MetricStateChanges, "Circuit breaker state transitions.")
	if err != nil {
		return nil, err
	}
	return &breakerMetrics{requests: requests, stateChanges: stateChanges}, nil
}

func (m *breakerMetrics) observe(ctx context.Context, key, result string) {
	m.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, result))
}
