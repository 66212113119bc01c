package api

import (
	"time"

	"github.com/ceyewan/nsid/xerrors"
)

const (
	// DefaultMaxBatch 单次请求最多生成的 ID 数
	DefaultMaxBatch = 1000

	DefaultHandleCacheSize = 10_000

	DefaultHandleIdleTimeout = 30 * time.Minute
)

// Config HTTP 服务配置
type Config struct {
	// Addr 监听地址，默认 ":8080"
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// MaxBatch count 参数上限
	MaxBatch int `json:"max_batch" yaml:"max_batch" mapstructure:"max_batch"`

	// HandleCacheSize 缓存的生成器句柄数上限，每个 namespace 一个
	HandleCacheSize int `json:"handle_cache_size" yaml:"handle_cache_size" mapstructure:"handle_cache_size"`

	// HandleIdleTimeout 句柄空闲多久后淘汰，淘汰后该句柄租约中剩余的 ID 不再发放
	HandleIdleTimeout time.Duration `json:"handle_idle_timeout" yaml:"handle_idle_timeout" mapstructure:"handle_idle_timeout"`

	// ShutdownTimeout 优雅退出时等待在途请求的时间
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.HandleCacheSize == 0 {
		c.HandleCacheSize = DefaultHandleCacheSize
	}
	if c.HandleIdleTimeout == 0 {
		c.HandleIdleTimeout = DefaultHandleIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate 补齐默认值并校验
func (c *Config) Validate() error {
	if c == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "api: config is nil")
	}
	c.setDefaults()
	if c.MaxBatch < 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "api: max_batch %d must be positive", c.MaxBatch)
	}
	if c.HandleCacheSize < 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "api: handle_cache_size %d must be positive", c.HandleCacheSize)
	}
	if c.HandleIdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "api: timeouts must not be negative")
	}
	return nil
}
