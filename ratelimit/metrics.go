package ratelimit

import (
	"context"

	"github.com/ceyewan/nsid/metrics"
)

const (
	// MetricAllowed 放行的请求数
	MetricAllowed = "nsid_ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数
	MetricDenied = "nsid_ratelimit_denied_total"

	// MetricErrors 限流器自身出错的次数，出错时中间件放行
	MetricErrors = "nsid_ratelimit_errors_total"

	// LabelMode standalone 或 distributed
	LabelMode = "mode"
)

// 限流键即 namespace，基数不可控，因此只按 mode 打标签
type limiterMetrics struct {
	mode    string
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
}

func newLimiterMetrics(meter metrics.Meter, mode string) *limiterMetrics {
	m := &limiterMetrics{mode: mode}
	m.allowed, _ = meter.Counter(MetricAllowed, "Number of requests allowed by the rate limiter")
	m.denied, _ = meter.Counter(MetricDenied, "Number of requests denied by the rate limiter")
	m.errors, _ = meter.Counter(MetricErrors, "Number of rate limiter failures")
	return m
}

func (m *limiterMetrics) record(ctx context.Context, allowed bool, err error) {
	label := metrics.L(LabelMode, m.mode)
	switch {
	case err != nil:
		if m.errors != nil {
			m.errors.Inc(ctx, label)
		}
	case allowed:
		if m.allowed != nil {
			m.allowed.Inc(ctx, label)
		}
	default:
		if m.denied != nil {
			m.denied.Inc(ctx, label)
		}
	}
}
