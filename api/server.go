// Package api 以 HTTP 接口对外提供 namespace ID 分配。
//
// 路由：
//
//	POST /v1/namespaces/:namespace/ids?count=N   分配 N 个 ID（默认 1）
//	GET  /v1/namespaces/:namespace               查看计数器与本实例的租约
//	GET  /healthz                                健康检查
//
// 每个 namespace 在本实例内只持有一个生成器句柄，句柄缓存在 otter 中，
// 多个请求共享同一段租约。
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/ratelimit"
	"github.com/ceyewan/nsid/trace"
	"github.com/ceyewan/nsid/xerrors"
)

// Server ID 分配的 HTTP 服务
type Server struct {
	cfg         *Config
	registry    *idgen.Registry
	handles     *otter.Cache[string, *idgen.Generator]
	loader      otter.LoaderFunc[string, *idgen.Generator]
	logger      clog.Logger
	httpMetrics *metrics.HTTPServerMetrics
	limiter     ratelimit.Limiter
	limit       ratelimit.Limit
	health      HealthCheck
	tracing     gin.HandlerFunc
}

// New 创建 Server，cfg 为 nil 时使用默认配置
func New(registry *idgen.Registry, cfg *Config, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "api: registry is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	handles, err := otter.New(&otter.Options[string, *idgen.Generator]{
		MaximumSize:      cfg.HandleCacheSize,
		ExpiryCalculator: otter.ExpiryAccessing[string, *idgen.Generator](cfg.HandleIdleTimeout),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "api: build handle cache")
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		handles:  handles,
		logger:   o.logger,
		limiter:  o.limiter,
		limit:    o.limit,
		health:   o.health,
	}
	// 加载结果由同一 namespace 的所有等待者共享，不能随首个请求一起被取消
	s.loader = otter.LoaderFunc[string, *idgen.Generator](func(ctx context.Context, namespace string) (*idgen.Generator, error) {
		return s.registry.Generator(context.WithoutCancel(ctx), namespace)
	})
	if o.tracing {
		s.tracing = trace.GinMiddleware(o.traceService, o.tp)
	}

	if o.meter != nil {
		httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, metrics.DefaultHTTPServerMetricsConfig(o.service))
		if err != nil {
			return nil, xerrors.Wrap(err, "api: create http metrics")
		}
		s.httpMetrics = httpMetrics
	}
	return s, nil
}

// Handler 返回挂载了全部路由的 gin.Engine
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.tracing != nil {
		r.Use(s.tracing)
	}
	r.Use(metrics.GinHTTPMiddleware(s.httpMetrics))
	s.Register(r)
	return r
}

// Register 将路由挂到已有的 gin 路由上
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1/namespaces/:namespace")
	v1.GET("", s.describe)
	v1.POST("/ids", ratelimit.GinMiddlewareN(s.limiter, s.limit,
		ratelimit.ParamKey("namespace"), ratelimit.QueryCost("count")), s.generate)
}

// Close 释放句柄缓存
func (s *Server) Close() {
	s.handles.StopAllGoroutines()
}

// generator 取出 namespace 的句柄，不存在时向 Registry 申请
//
// 同一个 namespace 的并发加载由 otter 合并，加载失败不缓存。
func (s *Server) generator(ctx context.Context, namespace string) (*idgen.Generator, error) {
	return s.handles.Get(ctx, namespace, s.loader)
}

type generateResponse struct {
	Namespace string   `json:"namespace"`
	IDs       []string `json:"ids"`
}

func (s *Server) generate(c *gin.Context) {
	ctx := c.Request.Context()
	namespace := c.Param("namespace")

	count, err := parseCount(c.Query("count"), s.cfg.MaxBatch)
	if err != nil {
		s.fail(c, err)
		return
	}

	gen, err := s.generator(ctx, namespace)
	if err != nil {
		s.fail(c, err)
		return
	}
	ids, err := gen.GenerateN(ctx, count)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, generateResponse{Namespace: namespace, IDs: ids})
}

func parseCount(raw string, max int) (int, error) {
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, xerrors.WithCodef(idgen.ErrInvalidInput, idgen.CodeInvalidInput, "count must be an integer in [1,%d], got %q", max, raw)
	}
	return n, nil
}

type leaseResponse struct {
	Handle    string `json:"handle"`
	Start     int64  `json:"start"`
	Size      int64  `json:"size"`
	Next      int64  `json:"next"`
	Remaining int64  `json:"remaining"`
}

type describeResponse struct {
	Namespace string         `json:"namespace"`
	Next      int64          `json:"next"`
	Exists    bool           `json:"exists"`
	Lease     *leaseResponse `json:"lease,omitempty"`
}

// describe 返回计数器的下一个值，以及本实例缓存的句柄租约（若有）
func (s *Server) describe(c *gin.Context) {
	namespace := c.Param("namespace")

	next, exists, err := s.registry.Store().Peek(c.Request.Context(), namespace)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := describeResponse{Namespace: namespace, Next: next, Exists: exists}
	if gen, ok := s.handles.GetIfPresent(namespace); ok {
		info := gen.Lease()
		resp.Lease = &leaseResponse{
			Handle:    gen.ID(),
			Start:     info.Start,
			Size:      info.Size,
			Next:      info.Next,
			Remaining: info.Remaining(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", clog.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
