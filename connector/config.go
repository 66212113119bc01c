package connector

import (
	"fmt"
	"time"

	"github.com/ceyewan/nsid/xerrors"
)

// RetryConfig 连接重试参数，嵌入到各连接器配置中
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`         // 失败后重试次数 (默认: 3)
	RetryInterval  time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`   // 重试间隔 (默认: 1s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"` // 单次尝试超时 (默认: 5s)
}

func (c *RetryConfig) setDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

func (c *RetryConfig) validate() error {
	if c.MaxRetries < 0 {
		return configErr("max_retries must not be negative")
	}
	return nil
}

// PoolConfig database/sql 连接池参数
type PoolConfig struct {
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`       // (默认: 10)
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`       // (默认: 100，SQLite 为 1)
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // (默认: 1h)
}

func (c *PoolConfig) setDefaults(maxOpen int) {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = maxOpen
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = min(10, c.MaxOpenConns)
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name        string `mapstructure:"name" yaml:"name"` // 连接器名称 (默认: "default")
	RetryConfig `mapstructure:",squash" yaml:",inline"`

	Addr     string `mapstructure:"addr" yaml:"addr"`         // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password" yaml:"password"` // [可选]
	DB       int    `mapstructure:"db" yaml:"db"`             // [可选] (默认: 0)

	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`           // (默认: 10)
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"` // (默认: 0)
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`     // (默认: 5s)
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`     // (默认: 3s)
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`   // (默认: 3s)
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.RetryConfig.setDefaults()
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return configErr("redis addr is required")
	}
	if c.DB < 0 {
		return configErr("redis db must not be negative")
	}
	return c.RetryConfig.validate()
}

// EtcdConfig Etcd 连接配置
type EtcdConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	RetryConfig `mapstructure:",squash" yaml:",inline"`

	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"` // [必填]
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`

	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`             // (默认: 5s)
	KeepAliveTime    time.Duration `mapstructure:"keep_alive_time" yaml:"keep_alive_time"`       // (默认: 10s)
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout"` // (默认: 3s)
}

func (c *EtcdConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.RetryConfig.setDefaults()
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAliveTime == 0 {
		c.KeepAliveTime = 10 * time.Second
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = 3 * time.Second
	}
}

func (c *EtcdConfig) validate() error {
	if len(c.Endpoints) == 0 {
		return configErr("etcd endpoints are required")
	}
	return c.RetryConfig.validate()
}

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	RetryConfig `mapstructure:",squash" yaml:",inline"`
	PoolConfig  `mapstructure:",squash" yaml:",inline"`

	DSN      string `mapstructure:"dsn" yaml:"dsn"` // 非空时忽略 Host/Port 等字段
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"` // (默认: 3306)
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Charset  string `mapstructure:"charset" yaml:"charset"` // (默认: utf8mb4)
}

func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.RetryConfig.setDefaults()
	c.PoolConfig.setDefaults(100)
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
}

func (c *MySQLConfig) validate() error {
	if c.DSN == "" {
		if c.Host == "" || c.Username == "" || c.Database == "" {
			return configErr("mysql host, username and database are required when dsn is empty")
		}
	}
	return c.RetryConfig.validate()
}

func (c *MySQLConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// PostgreSQLConfig PostgreSQL 连接配置
type PostgreSQLConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	RetryConfig `mapstructure:",squash" yaml:",inline"`
	PoolConfig  `mapstructure:",squash" yaml:",inline"`

	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"` // (默认: 5432)
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`   // (默认: disable)
	Timezone string `mapstructure:"timezone" yaml:"timezone"` // (默认: UTC)
}

func (c *PostgreSQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.RetryConfig.setDefaults()
	c.PoolConfig.setDefaults(100)
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

func (c *PostgreSQLConfig) validate() error {
	if c.DSN == "" {
		if c.Host == "" || c.Username == "" || c.Database == "" {
			return configErr("postgres host, username and database are required when dsn is empty")
		}
	}
	return c.RetryConfig.validate()
}

func (c *PostgreSQLConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode, c.Timezone)
}

// SQLiteConfig SQLite 连接配置
//
// SQLite 只允许单写者，连接池默认限制为 1 个连接。
type SQLiteConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	RetryConfig `mapstructure:",squash" yaml:",inline"`
	PoolConfig  `mapstructure:",squash" yaml:",inline"`

	Path string `mapstructure:"path" yaml:"path"` // 文件路径或 ":memory:"
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.RetryConfig.setDefaults()
	c.PoolConfig.setDefaults(1)
}

func (c *SQLiteConfig) validate() error {
	if c.Path == "" {
		return configErr("sqlite path is required")
	}
	return c.RetryConfig.validate()
}

func configErr(msg string) error {
	return xerrors.Wrap(ErrConfig, msg)
}
