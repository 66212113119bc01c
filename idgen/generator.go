package idgen

import (
	"context"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/trace"
)

// namespaceState 同一 namespace 下所有句柄共享的配置，由 Registry 创建
type namespaceState struct {
	name      string
	blockSize int64
	store     Store
	encoder   *Encoder
	logger    clog.Logger
	metrics   *generatorMetrics
	tracer    oteltrace.Tracer
}

// Generator 绑定到某个 namespace 的 ID 生成句柄
//
// Generator 可以并发使用。租约由互斥锁保护，补充租约时持有锁，因此每个句柄
// 同一时刻最多只有一次存储往返，租约耗尽时并发调用方等待这次补充完成，
// 不会各自发起预留。句柄不做内部重试：ErrStoreUnavailable 原样返回，
// ErrCounterOverflow 会让句柄永久失效。
type Generator struct {
	id string
	ns *namespaceState

	mu    sync.Mutex
	lease *lease
	fatal error
}

// ID 句柄的唯一标识，仅用于日志与诊断
func (g *Generator) ID() string {
	return g.id
}

func (g *Generator) Namespace() string {
	return g.ns.name
}

// Lease 返回当前租约的快照，尚未预留时返回零值
func (g *Generator) Lease() LeaseInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lease.info()
}

// GenerateID 返回一个新 ID，租约耗尽时向存储预留下一块
func (g *Generator) GenerateID(ctx context.Context) (string, error) {
	g.mu.Lock()
	value, err := g.nextLocked(ctx)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}

	g.ns.metrics.generated.Inc(ctx)
	return g.ns.encoder.Encode(g.ns.name, value), nil
}

// GenerateN 连续生成 n 个 ID
//
// 出错时丢弃已生成的部分并返回错误，已经从租约中取出的值不会再次发放。
func (g *Generator) GenerateN(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, invalidInput("count %d must be positive", n)
	}

	values := make([]int64, 0, n)
	g.mu.Lock()
	for len(values) < n {
		v, err := g.nextLocked(ctx)
		if err != nil {
			g.mu.Unlock()
			return nil, err
		}
		values = append(values, v)
	}
	g.mu.Unlock()

	ids := make([]string, len(values))
	for i, v := range values {
		ids[i] = g.ns.encoder.Encode(g.ns.name, v)
	}
	g.ns.metrics.generated.Add(ctx, float64(n))
	return ids, nil
}

func (g *Generator) nextLocked(ctx context.Context) (int64, error) {
	if g.fatal != nil {
		return 0, g.fatal
	}
	if g.lease.exhausted() {
		if err := g.refillLocked(ctx); err != nil {
			return 0, err
		}
	}
	return g.lease.take(), nil
}

// refillLocked 失败时保持旧租约不变
func (g *Generator) refillLocked(ctx context.Context) error {
	size := g.ns.blockSize
	ctx, span := g.ns.tracer.Start(ctx, "idgen.lease.refill",
		oteltrace.WithAttributes(
			attribute.String(trace.AttrNamespace, g.ns.name),
			attribute.String(trace.AttrGeneratorID, g.id),
			attribute.Int64(trace.AttrSize, size)))
	defer span.End()

	start, err := g.ns.store.Reserve(ctx, g.ns.name, size)
	if err == nil && (start < 0 || start > math.MaxInt64-size) {
		err = counterOverflow(g.ns.name, start, size)
	}
	g.ns.metrics.refills.Inc(ctx, metrics.L(labelOutcome, outcomeOf(err)))
	trace.MarkSpanError(span, err)

	if err != nil {
		if outcomeOf(err) == outcomeOverflow {
			g.fatal = err
			g.ns.logger.ErrorContext(ctx, "counter overflow, generator disabled",
				clog.String("namespace", g.ns.name),
				clog.String("generator_id", g.id),
				clog.Error(err))
		} else {
			g.ns.logger.ErrorContext(ctx, "failed to refill lease",
				clog.String("namespace", g.ns.name),
				clog.String("generator_id", g.id),
				clog.Error(err))
		}
		return err
	}

	g.lease = &lease{start: start, size: size}
	g.ns.logger.DebugContext(ctx, "lease refilled",
		clog.String("namespace", g.ns.name),
		clog.String("generator_id", g.id),
		clog.Int64("start", start),
		clog.Int64("size", size))
	return nil
}
