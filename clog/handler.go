package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// resolveOutput 按 Config.Output 打开输出目标，文件输出时返回的 closer 非空
func resolveOutput(config *Config, o *options) (io.Writer, *os.File, error) {
	if o.writer != nil {
		return o.writer, nil, nil
	}

	switch strings.ToLower(config.Output) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	if dir := filepath.Dir(config.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f, nil
}

// newHandler 根据格式创建 slog.Handler，级别由 levelVar 动态控制
func newHandler(w io.Writer, config *Config, levelVar *slog.LevelVar) slog.Handler {
	handlerOpts := &slog.HandlerOptions{
		Level:       levelVar,
		AddSource:   config.AddSource,
		ReplaceAttr: replaceAttr(config.SourceRoot),
	}

	if strings.ToLower(config.Format) == "json" {
		return slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.NewTextHandler(w, handlerOpts)
}

func replaceAttr(sourceRoot string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= FatalLevel.slogLevel() {
				return slog.String(slog.LevelKey, "FATAL")
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", trimSource(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

// trimSource 保留 sourceRoot 之后的相对路径，找不到时只保留最后两级
func trimSource(file, sourceRoot string) string {
	if sourceRoot != "" {
		if idx := strings.LastIndex(file, sourceRoot); idx >= 0 {
			return file[idx:]
		}
	}
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name)
}
