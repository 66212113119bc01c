// Package config 负责 nsidd 的配置加载，基于 Viper 实现。
//
// 配置来源按优先级从高到低：
//   - 环境变量（前缀默认 NSID，"." 替换为 "_"，如 NSID_IDGEN_BLOCK_SIZE）
//   - .env 文件（当前目录与搜索路径下）
//   - 环境特定配置文件 <name>.<NSID_ENV>.yaml
//   - 基础配置文件 <name>.yaml
//   - 代码中注册的默认值
//
// 基本使用：
//
//	app, err := config.LoadApp(ctx, config.WithConfigPaths("./config"))
//	if err != nil {
//		return err
//	}
//	ch, _ := app.Watch(ctx, "idgen.block_size")
//	for ev := range ch {
//		registry.SetBlockSize(cast.ToInt64(ev.Value))
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 按优先级加载所有来源，并开始监听配置文件变化
	Load(ctx context.Context) error

	Get(key string) any

	Unmarshal(v any) error

	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 结束时关闭返回的 channel
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
