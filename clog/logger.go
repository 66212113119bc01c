package clog

import "context"

// Logger 结构化日志接口
//
// 每个级别都有带 Context 的版本，带 Context 的方法会按 WithContextField
// 注册的规则从 ctx 中提取字段。
//
//	lg := logger.WithNamespace("idgen").With(clog.String("namespace", "orders"))
//	lg.InfoContext(ctx, "lease refilled", clog.Int64("start", 200))
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger，不影响父 Logger 与兄弟 Logger
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加若干段，以 "." 连接
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，父子 Logger 共享同一个级别
	SetLevel(level Level) error

	// Flush 同步底层输出（文件输出时调用 Sync）
	Flush()
}
