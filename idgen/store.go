package idgen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/connector"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/trace"
	"github.com/ceyewan/nsid/xerrors"
)

// Store 按 namespace 划分的持久化计数器
//
// 实现必须保证任意并发调用者之间 Reserve 返回的区间互不重叠。失败的 Reserve
// 不消耗任何值：返回错误时计数器保持不变。
type Store interface {
	// Reserve 原子地把计数器增加 size，返回增加前的值，预留区间为 [start, start+size)
	//
	// 未出现过的 namespace 从 0 开始。
	Reserve(ctx context.Context, namespace string, size int64) (int64, error)

	// Provision 计数器不存在时创建它（值为 0），返回本次调用是否创建了记录
	Provision(ctx context.Context, namespace string) (bool, error)

	// Peek 返回下一个未分配的值，不修改计数器
	Peek(ctx context.Context, namespace string) (int64, bool, error)
}

// Backends NewStore 可用的连接器，只需提供 Driver 对应的那一个
//
// 连接器由调用方创建、Connect 并负责 Close，存储只借用客户端。
type Backends struct {
	Redis connector.RedisConnector
	Etcd  connector.EtcdConnector
	SQL   connector.SQLConnector
}

// NewStore 按 cfg.Driver 创建存储，并按配置套上熔断器与指标
//
//	store, err := idgen.NewStore(ctx, &idgen.StoreConfig{Driver: "redis"},
//		idgen.Backends{Redis: redisConn}, idgen.WithLogger(logger), idgen.WithMeter(meter))
func NewStore(ctx context.Context, cfg *StoreConfig, backends Backends, opts ...Option) (Store, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch c.Driver {
	case DriverMemory:
		store, err = NewMemoryStore(&c, opts...)
	case DriverRedis:
		if backends.Redis == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis")
		}
		store, err = NewRedisStore(backends.Redis.GetClient(), &c, opts...)
	case DriverEtcd:
		if backends.Etcd == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "etcd")
		}
		store, err = NewEtcdStore(backends.Etcd.GetClient(), &c, opts...)
	case DriverMySQL, DriverPostgres, DriverSQLite:
		if backends.SQL == nil {
			return nil, xerrors.Wrapf(ErrConnectorNil, "%s", c.Driver)
		}
		if backends.SQL.Dialect() != c.Driver {
			return nil, invalidInput("driver %s does not match connector dialect %s", c.Driver, backends.SQL.Dialect())
		}
		store, err = NewSQLStore(ctx, backends.SQL.GetClient(), &c, opts...)
	}
	if err != nil {
		return nil, err
	}

	if c.Breaker.Enabled {
		store, err = newBreakerStore(store, c.Driver, &c.Breaker.Config, opts...)
		if err != nil {
			return nil, err
		}
	}
	return newInstrumentedStore(store, c.Driver, opts...)
}

// instrumentedStore 记录每次 Reserve 的结果与耗时，并为其创建 Span
type instrumentedStore struct {
	Store
	driver  string
	logger  clog.Logger
	metrics *storeMetrics
	tracer  oteltrace.Tracer
}

func newInstrumentedStore(store Store, driver string, opts ...Option) (Store, error) {
	o := applyOptions(opts)
	m, err := newStoreMetrics(o.meter)
	if err != nil {
		return nil, err
	}
	return &instrumentedStore{
		Store:   store,
		driver:  driver,
		logger:  o.logger.WithNamespace("store"),
		metrics: m,
		tracer:  o.tracer(),
	}, nil
}

func (s *instrumentedStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "idgen.store.reserve",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String(trace.AttrDriver, s.driver),
			attribute.String(trace.AttrNamespace, namespace),
			attribute.Int64(trace.AttrSize, size)))
	defer span.End()

	begin := time.Now()
	start, err := s.Store.Reserve(ctx, namespace, size)
	if err == nil {
		span.SetAttributes(attribute.Int64(trace.AttrStart, start))
	}
	trace.MarkSpanError(span, err)
	s.metrics.duration.Record(ctx, time.Since(begin).Seconds(), metrics.L(labelDriver, s.driver))
	s.metrics.reserves.Inc(ctx,
		metrics.L(labelDriver, s.driver),
		metrics.L(labelOutcome, outcomeOf(err)))
	if err != nil && IsRetryable(err) {
		s.logger.WarnContext(ctx, "store reserve failed",
			clog.String("driver", s.driver),
			clog.String("namespace", namespace),
			clog.Int64("size", size),
			clog.Error(err))
	}
	return start, err
}

// checkReserveArgs 所有驱动共用的入参校验
func checkReserveArgs(namespace string, size int64) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if size <= 0 {
		return invalidInput("reserve size %d must be positive", size)
	}
	return nil
}
