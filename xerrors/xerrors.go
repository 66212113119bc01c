// Package xerrors 提供 nsid 内部统一的错误处理工具。
//
// 约定：
//   - 包级哨兵错误使用 xerrors.New 定义，调用方通过 errors.Is 判断
//   - 需要机器可读分类的错误使用 WithCode 包装，HTTP 层通过 GetCode 取出错误码
//   - 传递上下文时使用 Wrap/Wrapf，保留完整错误链
package xerrors

import (
	"errors"
	"fmt"
)

// 通用哨兵错误，供 config/connector 等基础组件复用
var (
	// ErrInvalidInput 输入或配置不合法
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound 目标不存在
	ErrNotFound = errors.New("not found")
)

// Wrap 用上下文信息包装错误，err 为 nil 时返回 nil。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 为错误附加机器可读的错误码。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// WithCodef 附加错误码的同时补充一段上下文描述。
//
// 生成的错误链为 CodedError -> 描述 -> cause，errors.Is(err, cause) 依然成立。
func WithCodef(err error, code string, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: Wrapf(err, format, args...)}
}

// CodedError 带有错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取最外层的错误码，不存在时返回空字符串。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Must 如果 err 不为 nil，则 panic。仅用于初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	default:
		return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
	}
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个，忽略 nil。
//
// 常用于关闭多个资源：
//
//	return xerrors.Combine(httpServer.Shutdown(ctx), meter.Shutdown(ctx), conn.Close())
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)
