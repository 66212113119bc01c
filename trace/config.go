package trace

import "github.com/ceyewan/nsid/xerrors"

// Batcher 取值
const (
	BatcherBatch  = "batch"
	BatcherSimple = "simple"
)

// Config 链路追踪配置，Enabled 为 false 时不创建导出器
type Config struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Sampler     float64 `json:"sampler" yaml:"sampler" mapstructure:"sampler"`
	Batcher     string  `json:"batcher" yaml:"batcher" mapstructure:"batcher"`
	Insecure    bool    `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置，默认关闭
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     BatcherBatch,
		Insecure:    true,
	}
}

// Validate 校验配置，关闭时不做检查
func (c *Config) Validate() error {
	if c == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "trace: config is nil")
	}
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "trace: service_name is required")
	}
	if c.Endpoint == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "trace: endpoint is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "" && c.Batcher != BatcherBatch && c.Batcher != BatcherSimple {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: batcher must be %q or %q, got %q",
			BatcherBatch, BatcherSimple, c.Batcher)
	}
	return nil
}
