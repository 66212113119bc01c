// Package clog 为 nsid 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，组件通过 WithNamespace 派生子 Logger
//   - 支持从 Context 提取字段（如 request_id）
//   - 采用函数式选项模式
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("lease refilled", clog.String("namespace", "orders"), clog.Int64("start", 200))
//
// 组件约定：
//
//	registry, _ := idgen.NewRegistry(store, cfg, idgen.WithLogger(logger))
//	// idgen 内部会派生 logger.WithNamespace("idgen")
package clog

import (
	"fmt"
	"sync/atomic"
)

var defaultLogger atomic.Value

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("nsid")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// Default 返回进程级默认 Logger，未设置时返回 Discard()。
//
// 仅用于 main 或示例代码，组件应通过 WithLogger 显式注入。
func Default() Logger {
	if l, ok := defaultLogger.Load().(Logger); ok && l != nil {
		return l
	}
	return Discard()
}

// SetDefault 设置进程级默认 Logger
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(l)
}
