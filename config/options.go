package config

import (
	"strings"

	"github.com/ceyewan/nsid/clog"
)

// Option 加载器选项
type Option func(*Config)

// Config 加载器自身的配置
type Config struct {
	Name      string         // 配置文件名（不含扩展名），默认 "config"
	Paths     []string       // 搜索路径，默认 [".", "./config"]
	FileType  string         // 默认 "yaml"
	EnvPrefix string         // 默认 "NSID"
	Defaults  map[string]any // 以点分 key 注册的默认值
	Logger    clog.Logger
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "NSID"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	if c.Logger == nil {
		c.Logger = clog.Discard()
	}
}

// WithConfigName 设置配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithConfigPaths 设置搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) {
		c.Paths = paths
	}
}

// WithConfigType 设置配置文件类型
func WithConfigType(typ string) Option {
	return func(c *Config) {
		c.FileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.EnvPrefix = prefix
	}
}

// WithDefaults 注册默认值，已存在的 key 会被覆盖
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		if c.Defaults == nil {
			c.Defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			c.Defaults[k] = v
		}
	}
}

// WithLogger 设置 Logger，内部派生 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger.WithNamespace("config")
		}
	}
}
