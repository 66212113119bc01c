package idgen

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/xerrors"
)

// provisionTimeout 共享的首次创建调用的超时，与发起调用者的 Context 无关
const provisionTimeout = 10 * time.Second

// Registry 缓存每个 namespace 的共享配置，并为调用方创建 Generator 句柄
//
// Registry 需要显式创建并传递，不存在包级状态，测试之间互不影响。
// 每次 Generator 调用都返回一个新句柄，句柄之间共享配置但从不共享租约。
type Registry struct {
	store       Store
	encoder     *Encoder
	reusePolicy string
	maxNS       int
	blockSize   atomic.Int64
	logger      clog.Logger
	metrics     *generatorMetrics
	tracer      oteltrace.Tracer

	mu         sync.RWMutex
	namespaces map[string]*namespaceState
	group      singleflight.Group
}

// NewRegistry 创建 Registry
//
//	registry, err := idgen.NewRegistry(store, &idgen.Config{BlockSize: 100},
//		idgen.WithLogger(logger), idgen.WithMeter(meter))
//	gen, err := registry.Generator(ctx, "orders")
//	id, err := gen.GenerateID(ctx)
func NewRegistry(store Store, cfg *Config, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, invalidInput("store is nil")
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	encoder, err := NewEncoder(&c)
	if err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	m, err := newGeneratorMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		store:       store,
		encoder:     encoder,
		reusePolicy: c.ReusePolicy,
		maxNS:       c.MaxNamespaces,
		logger:      o.logger,
		metrics:     m,
		tracer:      o.tracer(),
		namespaces:  make(map[string]*namespaceState),
	}
	r.blockSize.Store(c.BlockSize)
	return r, nil
}

// Generator 返回绑定到 namespace 的新句柄，租约为空
//
// 本 Registry 中首次查找某个 namespace 时会在存储中创建计数器，并发的首次查找
// 只创建一次。创建失败不缓存，下一次查找会重试。reuse_policy=reject 时，若计数器
// 在此前的会话中已经存在，首次查找返回 ErrNamespaceAlreadyInitialized。
//
// 共享的创建调用不受任何单个调用者取消的影响，ctx 只决定本调用者等待多久。
// 已缓存的 namespace 数达到 max_namespaces 后，新的 namespace 返回 ErrNamespaceLimit。
func (r *Registry) Generator(ctx context.Context, namespace string) (*Generator, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	state, err := r.lookup(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return &Generator{id: uuid.NewString(), ns: state}, nil
}

func (r *Registry) lookup(ctx context.Context, namespace string) (*namespaceState, error) {
	r.mu.RLock()
	state, ok := r.namespaces[namespace]
	r.mu.RUnlock()
	if ok {
		return state, nil
	}

	ch := r.group.DoChan(namespace, func() (any, error) {
		r.mu.RLock()
		state, ok := r.namespaces[namespace]
		full := r.maxNS > 0 && len(r.namespaces) >= r.maxNS
		r.mu.RUnlock()
		if ok {
			return state, nil
		}
		if full {
			r.logger.WarnContext(ctx, "namespace limit reached",
				clog.String("namespace", namespace),
				clog.Int("max_namespaces", r.maxNS))
			return nil, xerrors.WithCodef(ErrNamespaceLimit, CodeNamespaceLimit,
				"namespace %s: limit %d", namespace, r.maxNS)
		}

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisionTimeout)
		defer cancel()
		if err := r.provision(pctx, namespace); err != nil {
			return nil, err
		}

		state = &namespaceState{
			name:      namespace,
			blockSize: r.blockSize.Load(),
			store:     r.store,
			encoder:   r.encoder,
			logger:    r.logger,
			metrics:   r.metrics,
			tracer:    r.tracer,
		}
		r.mu.Lock()
		r.namespaces[namespace] = state
		r.mu.Unlock()
		return state, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*namespaceState), nil
	case <-ctx.Done():
		return nil, storeUnavailable(ctx.Err(), "provision %s", namespace)
	}
}

func (r *Registry) provision(ctx context.Context, namespace string) error {
	created, err := r.store.Provision(ctx, namespace)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to provision namespace",
			clog.String("namespace", namespace),
			clog.Error(err))
		return err
	}
	if !created && r.reusePolicy == ReusePolicyReject {
		r.logger.WarnContext(ctx, "namespace already initialized",
			clog.String("namespace", namespace),
			clog.String("reuse_policy", r.reusePolicy))
		return xerrors.WithCodef(ErrNamespaceAlreadyInitialized, CodeNamespaceAlreadyInitialized,
			"namespace %s", namespace)
	}

	r.logger.InfoContext(ctx, "namespace provisioned",
		clog.String("namespace", namespace),
		clog.Bool("created", created),
		clog.Int64("block_size", r.blockSize.Load()))
	return nil
}

// Namespaces 返回本 Registry 已创建的 namespace，按字典序排列
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetBlockSize 修改 block_size，只对之后首次查找的 namespace 生效
func (r *Registry) SetBlockSize(size int64) error {
	if err := validateBlockSize(size); err != nil {
		return err
	}
	old := r.blockSize.Swap(size)
	if old != size {
		r.logger.Info("block size changed", clog.Int64("old", old), clog.Int64("new", size))
	}
	return nil
}

func (r *Registry) BlockSize() int64 {
	return r.blockSize.Load()
}

// Store 返回 Registry 使用的存储
func (r *Registry) Store() Store {
	return r.store
}
