package idgen

import (
	"math"
	"regexp"

	"github.com/ceyewan/nsid/breaker"
)

const (
	// DefaultBlockSize 每次向存储预留的 ID 数量
	DefaultBlockSize int64 = 100

	// MaxBlockSize block_size 的上限
	MaxBlockSize int64 = 1_000_000
)

// 编码方式
const (
	EncodingHex     = "hex"
	EncodingDecimal = "decimal"
	EncodingBase62  = "base62"
)

// 复用策略：一个 namespace 在此前的会话中已经使用过时如何处理
const (
	// ReusePolicyContinue 幂等创建，从已有计数继续分配
	ReusePolicyContinue = "continue"

	// ReusePolicyReject 计数器已存在时首次查找失败，返回 ErrNamespaceAlreadyInitialized
	ReusePolicyReject = "reject"
)

// Config 生成器配置，对同一个 Registry 下的所有 namespace 生效
type Config struct {
	// BlockSize 每次预留的 ID 数，默认 100，范围 [1, 1000000]
	BlockSize int64 `json:"block_size" yaml:"block_size" mapstructure:"block_size"`

	// Encoding 输出编码：hex（默认）、decimal、base62
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`

	// Width decimal 编码的最小宽度，不足时左侧补零，0 表示不补
	Width int `json:"width" yaml:"width" mapstructure:"width"`

	// Qualify 为 true 时输出 "<namespace>/<id>"
	Qualify bool `json:"qualify" yaml:"qualify" mapstructure:"qualify"`

	// ReusePolicy continue（默认）或 reject
	ReusePolicy string `json:"reuse_policy" yaml:"reuse_policy" mapstructure:"reuse_policy"`

	// MaxNamespaces 单个 Registry 最多缓存的 namespace 数，0 表示不限制
	MaxNamespaces int `json:"max_namespaces" yaml:"max_namespaces" mapstructure:"max_namespaces"`
}

func (c *Config) setDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Encoding == "" {
		c.Encoding = EncodingHex
	}
	if c.ReusePolicy == "" {
		c.ReusePolicy = ReusePolicyContinue
	}
}

// Validate 补齐默认值并校验
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	if err := validateBlockSize(c.BlockSize); err != nil {
		return err
	}
	switch c.Encoding {
	case EncodingHex, EncodingDecimal, EncodingBase62:
	default:
		return invalidInput("unsupported encoding %q", c.Encoding)
	}
	if c.Width < 0 || c.Width > 20 {
		return invalidInput("width %d out of [0,20]", c.Width)
	}
	switch c.ReusePolicy {
	case ReusePolicyContinue, ReusePolicyReject:
	default:
		return invalidInput("unsupported reuse_policy %q", c.ReusePolicy)
	}
	if c.MaxNamespaces < 0 {
		return invalidInput("max_namespaces %d is negative", c.MaxNamespaces)
	}
	return nil
}

func validateBlockSize(size int64) error {
	if size < 1 || size > MaxBlockSize {
		return invalidInput("block_size %d out of [1,%d]", size, MaxBlockSize)
	}
	return nil
}

// 存储驱动
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverEtcd     = "etcd"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StoreConfig 计数器存储配置
type StoreConfig struct {
	// Driver memory、redis、etcd、mysql、postgres、sqlite，默认 memory
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// KeyPrefix redis 键为 "<prefix>:<ns>"，etcd 键为 "<prefix>/<ns>"，默认 "nsid:counter"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Table SQL 驱动使用的表名，默认 "nsid_counters"
	Table string `json:"table" yaml:"table" mapstructure:"table"`

	// MaxValue 计数器上限（不含），0 表示 math.MaxInt64
	MaxValue int64 `json:"max_value" yaml:"max_value" mapstructure:"max_value"`

	Breaker BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig 存储熔断配置
type BreakerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	breaker.Config `mapstructure:",squash" yaml:",inline"`
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func (c *StoreConfig) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "nsid:counter"
	}
	if c.Table == "" {
		c.Table = "nsid_counters"
	}
	if c.MaxValue == 0 {
		c.MaxValue = math.MaxInt64
	}
}

// Validate 补齐默认值并校验
func (c *StoreConfig) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	switch c.Driver {
	case DriverMemory, DriverRedis, DriverEtcd, DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return invalidInput("unsupported store driver %q", c.Driver)
	}
	if !tableNamePattern.MatchString(c.Table) {
		return invalidInput("invalid table name %q", c.Table)
	}
	if c.MaxValue < 0 {
		return invalidInput("max_value %d is negative", c.MaxValue)
	}
	return nil
}

// fits 判断 [start, start+size) 是否仍在 [0, max) 之内，不会发生整数溢出
func fits(start, size, max int64) bool {
	return start >= 0 && size > 0 && size <= max && start <= max-size
}
