// Package bootstrap 按 AppConfig 组装 nsidd 的全部依赖。
package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/ceyewan/nsid/api"
	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/config"
	"github.com/ceyewan/nsid/connector"
	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/ratelimit"
	"github.com/ceyewan/nsid/trace"
	"github.com/ceyewan/nsid/xerrors"
)

// Shutdown 资源释放函数
type Shutdown func(context.Context) error

// App 组装完成的服务
type App struct {
	Config   *config.AppConfig
	Logger   clog.Logger
	Meter    metrics.Meter
	Store    idgen.Store
	Registry *idgen.Registry
	Server   *api.Server

	shutdowns []Shutdown
}

// Build 创建 Logger、Meter、TracerProvider、连接器、存储、Registry 与 HTTP 服务
//
// 任一步骤失败时已创建的资源会被释放。
func Build(ctx context.Context, cfg *config.AppConfig) (_ *App, err error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "bootstrap: config is nil")
	}
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	logger, err := clog.New(&cfg.Log, clog.WithNamespace("nsidd"), clog.WithTraceContext())
	if err != nil {
		return nil, xerrors.Wrap(err, "init logger")
	}
	app.Logger = logger
	app.onShutdown(func(context.Context) error {
		logger.Flush()
		return nil
	})
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return nil, xerrors.Wrap(err, "init metrics")
	}
	app.Meter = meter
	app.onShutdown(meter.Shutdown)

	// 存储与 Registry 在创建时取全局 TracerProvider，必须先于它们初始化
	shutdownTrace, err := trace.Init(&cfg.Trace)
	if err != nil {
		return nil, xerrors.Wrap(err, "init trace")
	}
	app.onShutdown(Shutdown(shutdownTrace))

	backends, health, err := app.connect(ctx)
	if err != nil {
		return nil, err
	}

	store, err := idgen.NewStore(ctx, &cfg.Store, backends, idgen.WithLogger(logger), idgen.WithMeter(meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "init store")
	}
	app.Store = store

	registry, err := idgen.NewRegistry(store, &cfg.IDGen, idgen.WithLogger(logger), idgen.WithMeter(meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "init registry")
	}
	app.Registry = registry

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithMeter(meter, cfg.Metrics.ServiceName),
		api.WithHealthCheck(health),
	}
	if cfg.Trace.Enabled {
		opts = append(opts, api.WithTracing(cfg.Trace.ServiceName, nil))
	}
	if cfg.RateLimit.Enabled {
		limiter, err := app.newLimiter(ctx, backends.Redis)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithRateLimiter(limiter, cfg.RateLimit.Limit()))
	}

	server, err := api.New(registry, &cfg.HTTP, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "init http server")
	}
	app.Server = server
	app.onShutdown(func(context.Context) error {
		server.Close()
		return nil
	})

	logger.Info("nsidd initialized",
		clog.String("driver", cfg.Store.Driver),
		clog.Int64("block_size", registry.BlockSize()),
		clog.String("encoding", cfg.IDGen.Encoding),
		clog.String("reuse_policy", cfg.IDGen.ReusePolicy),
		clog.Bool("ratelimit", cfg.RateLimit.Enabled),
		clog.Bool("trace", cfg.Trace.Enabled))
	return app, nil
}

// connect 只为 store.driver 创建并连接对应的连接器，memory 驱动不需要连接器
func (a *App) connect(ctx context.Context) (idgen.Backends, api.HealthCheck, error) {
	cfg := a.Config
	opts := a.connectorOptions()

	var (
		backends idgen.Backends
		conn     connector.Connector
		err      error
	)
	switch cfg.Store.Driver {
	case idgen.DriverMemory:
		a.Logger.Warn("memory store does not survive restarts, use it for development only")
		return backends, nil, nil
	case idgen.DriverRedis:
		backends.Redis, err = connector.NewRedis(&cfg.Redis, opts...)
		conn = backends.Redis
	case idgen.DriverEtcd:
		backends.Etcd, err = connector.NewEtcd(&cfg.Etcd, opts...)
		conn = backends.Etcd
	case idgen.DriverMySQL:
		backends.SQL, err = connector.NewMySQL(&cfg.MySQL, opts...)
		conn = backends.SQL
	case idgen.DriverPostgres:
		backends.SQL, err = connector.NewPostgreSQL(&cfg.Postgres, opts...)
		conn = backends.SQL
	case idgen.DriverSQLite:
		backends.SQL, err = connector.NewSQLite(&cfg.SQLite, opts...)
		conn = backends.SQL
	default:
		return backends, nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return backends, nil, xerrors.Wrapf(err, "create %s connector", cfg.Store.Driver)
	}
	a.onShutdown(func(context.Context) error { return conn.Close() })

	if err := conn.Connect(ctx); err != nil {
		return backends, nil, xerrors.Wrapf(err, "connect %s", cfg.Store.Driver)
	}
	return backends, conn.HealthCheck, nil
}

// newLimiter distributed 模式复用存储的 Redis 连接，存储不是 Redis 时单独建立连接
func (a *App) newLimiter(ctx context.Context, redisConn connector.RedisConnector) (ratelimit.Limiter, error) {
	cfg := a.Config
	if cfg.RateLimit.Mode == ratelimit.ModeDistributed && redisConn == nil {
		conn, err := connector.NewRedis(&cfg.Redis, a.connectorOptions()...)
		if err != nil {
			return nil, xerrors.Wrap(err, "create ratelimit redis connector")
		}
		a.onShutdown(func(context.Context) error { return conn.Close() })
		if err := conn.Connect(ctx); err != nil {
			return nil, xerrors.Wrap(err, "connect ratelimit redis")
		}
		redisConn = conn
	}

	limiter, err := ratelimit.New(&cfg.RateLimit, redisConn, ratelimit.WithLogger(a.Logger), ratelimit.WithMeter(a.Meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "init rate limiter")
	}
	a.onShutdown(func(context.Context) error { return limiter.Close() })
	return limiter, nil
}

// WatchBlockSize 监听 idgen.block_size，变更只影响之后首次使用的 namespace
func (a *App) WatchBlockSize(ctx context.Context) error {
	ch, err := a.Config.Watch(ctx, config.KeyBlockSize)
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			size, err := cast.ToInt64E(ev.Value)
			if err == nil {
				err = a.Registry.SetBlockSize(size)
			}
			if err != nil {
				a.Logger.Warn("ignored block_size change",
					clog.Any("value", ev.Value),
					clog.Error(err))
				continue
			}
			a.Logger.Info("block_size updated",
				clog.Any("old", ev.OldValue),
				clog.Int64("new", size))
		}
	}()
	return nil
}

// connectorOptions 开启链路追踪时，Redis 命令与 SQL 语句也会生成 Span
func (a *App) connectorOptions() []connector.Option {
	opts := []connector.Option{connector.WithLogger(a.Logger), connector.WithMeter(a.Meter)}
	if a.Config.Trace.Enabled {
		opts = append(opts, connector.WithTracerProvider(trace.Provider(nil)))
	}
	return opts
}

func (a *App) onShutdown(fn Shutdown) {
	a.shutdowns = append(a.shutdowns, fn)
}

// Close 按创建的逆序释放资源
func (a *App) Close(ctx context.Context) error {
	errs := make([]error, 0, len(a.shutdowns))
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, a.shutdowns[i](ctx))
	}
	a.shutdowns = nil
	return xerrors.Combine(errs...)
}
