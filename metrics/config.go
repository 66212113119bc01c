package metrics

import (
	"strings"

	"github.com/ceyewan/nsid/xerrors"
)

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: nsidd
//	  port: 9090
//	  path: /metrics
type Config struct {
	// Enabled 为 false 时 New 返回 Discard()
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// ServiceName 写入 OTel Resource 的 service.name
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`

	Version string `mapstructure:"version" yaml:"version" json:"version"`

	// Port 大于 0 时启动独立的 HTTP 服务暴露 Path
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// NewDevDefaultConfig 开发环境默认配置，不启动独立端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "nsid"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "metrics port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "metrics path %q must start with /", c.Path)
	}
	return nil
}
