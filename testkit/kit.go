// Package testkit 提供测试用的公共依赖：Logger、Meter、唯一 ID 以及基于
// testcontainers 的 Redis、Etcd、MySQL、PostgreSQL 连接器。
//
// 依赖容器的辅助函数在 testing.Short() 下会调用 t.Skip。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
)

// Kit 通用测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回带默认依赖的 Kit，Meter 在测试结束时关闭
func NewKit(t *testing.T) *Kit {
	t.Helper()
	meter := NewMeter()
	t.Cleanup(func() {
		_ = meter.Shutdown(context.Background())
	})
	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 返回开发格式的 Logger，级别为 info，避免 debug 日志淹没测试输出
func NewLogger() clog.Logger {
	cfg := clog.NewDevDefaultConfig("nsid")
	cfg.Level = "info"
	logger, err := clog.New(cfg)
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回独立 registry 的 Meter，不监听端口
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("nsid-test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回带超时的 Context，cancel 注册到 t.Cleanup
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回 8 位唯一 ID，用于拼接 namespace、key 前缀，避免测试间冲突
func NewID() string {
	return uuid.NewString()[:8]
}

// SkipIfShort 在 -short 模式下跳过依赖容器的测试
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
}
