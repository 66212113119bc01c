package config

import (
	"fmt"

	"github.com/ceyewan/nsid/xerrors"
)

// ErrValidationFailed 配置校验失败
var ErrValidationFailed = xerrors.New("config: validation failed")

// IsInvalidInput 判断错误是否由非法配置引起
func IsInvalidInput(err error) bool {
	return xerrors.Is(err, xerrors.ErrInvalidInput) || xerrors.Is(err, ErrValidationFailed)
}

func validationError(format string, args ...any) error {
	return xerrors.Wrapf(ErrValidationFailed, format, args...)
}

// wrapValidation 保留原始错误链，errors.Is 对 ErrValidationFailed 与 err 都成立
func wrapValidation(err error, section string) error {
	return fmt.Errorf("%w: %s: %w", ErrValidationFailed, section, err)
}
