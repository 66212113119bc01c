package clog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

type loggerImpl struct {
	handler       slog.Handler
	levelVar      *slog.LevelVar
	file          *os.File
	attrs         []slog.Attr
	namespace     []string
	contextFields []ContextField
	traceContext  bool
	addSource     bool
}

func newLogger(config *Config, o *options) (Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	w, file, err := resolveOutput(config, o)
	if err != nil {
		return nil, err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	return &loggerImpl{
		handler:       newHandler(w, config, levelVar),
		levelVar:      levelVar,
		file:          file,
		namespace:     append([]string(nil), o.namespaceParts...),
		contextFields: append([]ContextField(nil), o.contextFields...),
		traceContext:  o.traceContext,
		addSource:     config.AddSource,
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields)
	l.Flush()
	os.Exit(1)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
	l.Flush()
	os.Exit(1)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	child := l.clone()
	// 三段式切片保证 append 时重新分配，兄弟 Logger 互不影响
	child.attrs = append(child.attrs[:len(child.attrs):len(child.attrs)], fields...)
	return child
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	child := l.clone()
	child.namespace = append(child.namespace[:len(child.namespace):len(child.namespace)], parts...)
	return child
}

func (l *loggerImpl) SetLevel(level Level) error {
	l.levelVar.Set(level.slogLevel())
	return nil
}

func (l *loggerImpl) Flush() {
	if l.file != nil {
		_ = l.file.Sync()
	}
}

func (l *loggerImpl) clone() *loggerImpl {
	c := *l
	return &c
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level.slogLevel()) {
		return
	}

	var pc uintptr
	if l.addSource {
		var pcs [1]uintptr
		// 跳过 runtime.Callers、log 和级别方法本身
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}

	r := slog.NewRecord(time.Now(), level.slogLevel(), msg, pc)
	if len(l.namespace) > 0 {
		r.AddAttrs(slog.String("namespace", strings.Join(l.namespace, ".")))
	}
	for _, cf := range l.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			r.AddAttrs(slog.Any(cf.FieldName, v))
		}
	}
	if l.traceContext {
		if sc := oteltrace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()))
		}
	}
	r.AddAttrs(l.attrs...)
	r.AddAttrs(fields...)

	_ = l.handler.Handle(ctx, r)
}
