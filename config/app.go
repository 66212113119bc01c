package config

import (
	"context"

	"github.com/ceyewan/nsid/api"
	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/connector"
	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/ratelimit"
	"github.com/ceyewan/nsid/trace"
)

// KeyBlockSize 运行时可热更新的 block_size
const KeyBlockSize = "idgen.block_size"

// AppConfig nsidd 的完整配置
type AppConfig struct {
	Log     clog.Config    `mapstructure:"log" yaml:"log"`
	Metrics metrics.Config `mapstructure:"metrics" yaml:"metrics"`
	Trace   trace.Config   `mapstructure:"trace" yaml:"trace"`
	HTTP    api.Config     `mapstructure:"http" yaml:"http"`

	RateLimit ratelimit.Config `mapstructure:"ratelimit" yaml:"ratelimit"`

	IDGen idgen.Config      `mapstructure:"idgen" yaml:"idgen"`
	Store idgen.StoreConfig `mapstructure:"store" yaml:"store"`

	// 只有 store.driver 对应的连接配置会被使用
	Redis    connector.RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Etcd     connector.EtcdConfig       `mapstructure:"etcd" yaml:"etcd"`
	MySQL    connector.MySQLConfig      `mapstructure:"mysql" yaml:"mysql"`
	Postgres connector.PostgreSQLConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite   connector.SQLiteConfig     `mapstructure:"sqlite" yaml:"sqlite"`

	loader Loader
}

// Defaults 返回 AppConfig 的默认值
//
// 每个 key 都需要登记默认值，环境变量（如 NSID_STORE_DRIVER）才能在 Unmarshal 时生效。
func Defaults() map[string]any {
	return map[string]any{
		"log.level":       "info",
		"log.format":      "console",
		"log.output":      "stdout",
		"log.add_source":  false,
		"log.source_root": "",

		"metrics.enabled":      true,
		"metrics.service_name": "nsidd",
		"metrics.version":      "",
		"metrics.port":         9090,
		"metrics.path":         "/metrics",

		"trace.enabled":      false,
		"trace.service_name": "nsidd",
		"trace.endpoint":     "localhost:4317",
		"trace.sampler":      1.0,
		"trace.batcher":      trace.BatcherBatch,
		"trace.insecure":     true,

		"http.addr":                ":8080",
		"http.max_batch":           api.DefaultMaxBatch,
		"http.handle_cache_size":   api.DefaultHandleCacheSize,
		"http.handle_idle_timeout": api.DefaultHandleIdleTimeout.String(),
		"http.shutdown_timeout":    "10s",

		"ratelimit.enabled":          false,
		"ratelimit.mode":             ratelimit.ModeStandalone,
		"ratelimit.rate":             1000.0,
		"ratelimit.burst":            2000,
		"ratelimit.prefix":           "nsid:ratelimit:",
		"ratelimit.cleanup_interval": "1m",
		"ratelimit.idle_timeout":     "5m",

		"idgen.block_size":     idgen.DefaultBlockSize,
		"idgen.encoding":       idgen.EncodingHex,
		"idgen.width":          0,
		"idgen.qualify":        false,
		"idgen.reuse_policy":   idgen.ReusePolicyContinue,
		"idgen.max_namespaces": 0,

		"store.driver":                   idgen.DriverRedis,
		"store.key_prefix":               "nsid:counter",
		"store.table":                    "nsid_counters",
		"store.max_value":                0,
		"store.breaker.enabled":          true,
		"store.breaker.max_requests":     1,
		"store.breaker.interval":         "0s",
		"store.breaker.timeout":          "10s",
		"store.breaker.failure_ratio":    0.6,
		"store.breaker.minimum_requests": 10,

		"redis.addr":     "127.0.0.1:6379",
		"redis.password": "",
		"redis.db":       0,

		"etcd.endpoints": []string{"127.0.0.1:2379"},
		"etcd.username":  "",
		"etcd.password":  "",

		"mysql.host":     "127.0.0.1",
		"mysql.port":     3306,
		"mysql.username": "root",
		"mysql.password": "",
		"mysql.database": "nsid",

		"postgres.host":     "127.0.0.1",
		"postgres.port":     5432,
		"postgres.username": "postgres",
		"postgres.password": "",
		"postgres.database": "nsid",

		"sqlite.path": "nsid.db",
	}
}

// LoadApp 加载并校验 AppConfig
//
//	app, err := config.LoadApp(ctx, config.WithConfigPaths(".", "./config"))
func LoadApp(ctx context.Context, opts ...Option) (*AppConfig, error) {
	opts = append([]Option{WithConfigName("nsidd"), WithDefaults(Defaults())}, opts...)
	loader, err := New(nil, opts...)
	if err != nil {
		return nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}

	app := &AppConfig{loader: loader}
	if err := loader.Unmarshal(app); err != nil {
		return nil, wrapValidation(err, "unmarshal app config")
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// Validate 校验与存储无关的部分，连接配置由各连接器自行校验
func (c *AppConfig) Validate() error {
	if c.HTTP.Addr == "" {
		return validationError("http.addr is required")
	}
	if err := c.HTTP.Validate(); err != nil {
		return wrapValidation(err, "http")
	}
	if err := c.Trace.Validate(); err != nil {
		return wrapValidation(err, "trace")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return wrapValidation(err, "ratelimit")
	}
	if err := c.IDGen.Validate(); err != nil {
		return wrapValidation(err, "idgen")
	}
	if err := c.Store.Validate(); err != nil {
		return wrapValidation(err, "store")
	}
	return nil
}

// Watch 监听配置项变化，AppConfig 不是由 LoadApp 创建时返回错误
func (c *AppConfig) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if c.loader == nil {
		return nil, validationError("app config has no loader")
	}
	return c.loader.Watch(ctx, key)
}
