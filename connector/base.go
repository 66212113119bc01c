package connector

import (
	"context"
	"sync/atomic"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/xerrors"
)

const MetricConnectTotal = "connector_connect_total"

// base 各连接器共享的名称、健康状态、日志与连接重试逻辑
type base struct {
	kind     string
	name     string
	logger   clog.Logger
	attempts metrics.Counter
	tp       oteltrace.TracerProvider
	healthy  atomic.Bool
}

func newBase(kind, name string, opts []Option) (*base, error) {
	o := applyOptions(opts)
	attempts, err := o.meter.Counter(MetricConnectTotal, "Connector connect attempts.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create connect counter")
	}
	return &base{
		kind:     kind,
		name:     name,
		logger:   o.logger.With(clog.String("connector", kind), clog.String("name", name)),
		attempts: attempts,
		tp:       o.tp,
	}, nil
}

func (b *base) Name() string {
	return b.name
}

func (b *base) IsHealthy() bool {
	return b.healthy.Load()
}

// connectWithRetry 执行 attempt 直到成功、重试次数用尽或 ctx 结束
//
// 每次尝试使用独立的 timeout；返回的错误包装 ErrConnection。
func (b *base) connectWithRetry(ctx context.Context, retry RetryConfig, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= retry.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", b.kind, b.name, ctx.Err())
			case <-time.After(retry.RetryInterval):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, retry.ConnectTimeout)
		lastErr = attempt(attemptCtx)
		cancel()

		if lastErr == nil {
			b.attempts.Inc(ctx, metrics.L("connector", b.kind), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
			b.healthy.Store(true)
			return nil
		}

		b.attempts.Inc(ctx, metrics.L("connector", b.kind), metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		b.logger.Warn("connect attempt failed",
			clog.Int("attempt", i+1),
			clog.Int("max_retries", retry.MaxRetries),
			clog.Error(lastErr))
	}

	b.healthy.Store(false)
	return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", b.kind, b.name, lastErr)
}

// runCheck 执行健康检查并刷新缓存状态
func (b *base) runCheck(ctx context.Context, check func(ctx context.Context) error) error {
	if err := check(ctx); err != nil {
		b.healthy.Store(false)
		b.logger.Warn("health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", b.kind, b.name, err)
	}
	b.healthy.Store(true)
	return nil
}
