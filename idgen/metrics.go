package idgen

import (
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/xerrors"
)

// 指标名称。namespace 基数不可控，因此不作为标签
const (
	// MetricIDsGenerated 已发放的 ID 总数 (Counter)
	MetricIDsGenerated = "nsid_ids_generated_total"

	// MetricLeaseRefills 租约补充次数 (Counter)，标签 outcome
	MetricLeaseRefills = "nsid_lease_refills_total"

	// MetricStoreReserve 存储预留次数 (Counter)，标签 driver、outcome
	MetricStoreReserve = "nsid_store_reserve_total"

	// MetricStoreReserveDuration 存储预留耗时 (Histogram)，标签 driver
	MetricStoreReserveDuration = "nsid_store_reserve_duration_seconds"
)

const (
	labelOutcome = metrics.LabelOutcome
	labelDriver  = metrics.LabelDriver
)

// outcome 取值
const (
	outcomeSuccess     = "success"
	outcomeUnavailable = "unavailable"
	outcomeOverflow    = "overflow"
	outcomeError       = "error"
)

type generatorMetrics struct {
	generated metrics.Counter
	refills   metrics.Counter
}

func newGeneratorMetrics(meter metrics.Meter) (*generatorMetrics, error) {
	generated, err := meter.Counter(MetricIDsGenerated, "Total number of IDs handed out by generators.")
	if err != nil {
		return nil, err
	}
	refills, err := meter.Counter(MetricLeaseRefills, "Total number of block lease refills.")
	if err != nil {
		return nil, err
	}
	return &generatorMetrics{generated: generated, refills: refills}, nil
}

type storeMetrics struct {
	reserves metrics.Counter
	duration metrics.Histogram
}

func newStoreMetrics(meter metrics.Meter) (*storeMetrics, error) {
	reserves, err := meter.Counter(MetricStoreReserve, "Total number of counter store reservations.")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Histogram(MetricStoreReserveDuration, "Counter store reservation latency.",
		metrics.WithUnit("s"),
		metrics.WithBuckets([]float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}))
	if err != nil {
		return nil, err
	}
	return &storeMetrics{reserves: reserves, duration: duration}, nil
}

// outcomeOf 把错误归类为指标的 outcome 标签
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case IsRetryable(err):
		return outcomeUnavailable
	case xerrors.Is(err, ErrCounterOverflow):
		return outcomeOverflow
	default:
		return outcomeError
	}
}
