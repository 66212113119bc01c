// Package connector 管理 nsid 计数器存储所依赖的外部连接。
//
// 支持 Redis、Etcd 以及基于 GORM 的 MySQL、PostgreSQL、SQLite。
// 所有连接器遵循相同的约定：
//   - NewXXX() 只校验配置，不建立连接
//   - Connect() 幂等，按 MaxRetries/RetryInterval 重试，连接成功后 GetClient() 才可用
//   - Close() 幂等，由创建者负责调用，idgen 中的存储驱动只借用客户端
//
// 基本使用：
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	store, err := idgen.NewRedisStore(conn.GetClient(), storeCfg)
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
)

// Connector 所有连接器的通用行为，方法均为并发安全
type Connector interface {
	// Connect 建立连接，已连接时直接返回 nil
	Connect(ctx context.Context) error

	// Close 关闭连接，之后 GetClient 返回 nil
	Close() error

	// HealthCheck 主动探测连接，并刷新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最近一次 Connect/HealthCheck 的结果，不阻塞
	IsHealthy() bool

	// Name 连接器实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端，Connect 之前或 Close 之后返回零值
	GetClient() T
}

type RedisConnector interface {
	TypedConnector[*redis.Client]
}

type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// SQLConnector 基于 GORM 的关系型数据库连接器
type SQLConnector interface {
	TypedConnector[*gorm.DB]

	// Dialect 返回 GORM 方言名：mysql、postgres 或 sqlite
	Dialect() string
}

type MySQLConnector = SQLConnector

type PostgreSQLConnector = SQLConnector

type SQLiteConnector = SQLConnector
