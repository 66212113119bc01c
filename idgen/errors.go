package idgen

import (
	"fmt"

	"github.com/ceyewan/nsid/xerrors"
)

var (
	// ErrStoreUnavailable 计数器存储不可达或原子操作无法保证，调用方可以重试
	ErrStoreUnavailable = xerrors.New("idgen: store unavailable")

	// ErrInvalidNamespace namespace 为空、过长或包含非法字符
	ErrInvalidNamespace = xerrors.New("idgen: invalid namespace")

	// ErrCounterOverflow 计数器已到达上限，对该 namespace 是致命错误
	ErrCounterOverflow = xerrors.New("idgen: counter overflow")

	// ErrNamespaceAlreadyInitialized reuse_policy=reject 时 namespace 的计数器已存在
	ErrNamespaceAlreadyInitialized = xerrors.New("idgen: namespace already initialized")

	// ErrNamespaceLimit Registry 中的 namespace 数已达到 max_namespaces
	ErrNamespaceLimit = xerrors.New("idgen: namespace limit reached")

	ErrInvalidInput = xerrors.New("idgen: invalid input")

	ErrConfigNil = xerrors.New("idgen: config is nil")

	ErrConnectorNil = xerrors.New("idgen: connector is nil")
)

// 错误码，经 xerrors.GetCode 取出
const (
	CodeStoreUnavailable            = "store_unavailable"
	CodeInvalidNamespace            = "invalid_namespace"
	CodeCounterOverflow             = "counter_overflow"
	CodeNamespaceAlreadyInitialized = "namespace_already_initialized"
	CodeInvalidInput                = "invalid_input"
	CodeNamespaceLimit              = "namespace_limit"
)

// IsRetryable 判断错误是否可由调用方重试
func IsRetryable(err error) bool {
	return xerrors.Is(err, ErrStoreUnavailable)
}

// storeUnavailable 同时保留哨兵错误与底层原因，errors.Is 对两者都成立
func storeUnavailable(cause error, format string, args ...any) error {
	return xerrors.WithCode(
		fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, fmt.Sprintf(format, args...), cause),
		CodeStoreUnavailable)
}

func counterOverflow(namespace string, start, size int64) error {
	return xerrors.WithCodef(ErrCounterOverflow, CodeCounterOverflow,
		"namespace %s start %d size %d", namespace, start, size)
}

func invalidInput(format string, args ...any) error {
	return xerrors.WithCodef(ErrInvalidInput, CodeInvalidInput, format, args...)
}
