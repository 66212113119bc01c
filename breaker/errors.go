package breaker

import "github.com/ceyewan/nsid/xerrors"

var (
	ErrConfigNil = xerrors.New("breaker: config is nil")

	ErrKeyEmpty = xerrors.New("breaker: key is empty")

	// ErrOpenState 熔断器打开，或半开状态下探测请求已满
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)
