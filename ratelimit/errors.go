package ratelimit

import (
	"fmt"

	"github.com/ceyewan/nsid/xerrors"
)

var (
	ErrConfigNil = xerrors.New("ratelimit: config is nil")

	ErrConnectorNil = xerrors.New("ratelimit: redis connector is nil")

	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.New("ratelimit: key is empty")

	// ErrInvalidLimit Rate 或 Burst 不是正数
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")

	// ErrRateLimitExceeded 请求被限流，HTTP 层映射为 429
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
)

// CodeRateLimited 被限流时响应体中的错误码
const CodeRateLimited = "rate_limited"

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: ratelimit: %s", xerrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}
