package idgen

import (
	"fmt"
	"strconv"

	"github.com/ceyewan/nsid/xerrors"
)

// MaxNamespaceLen namespace 的最大字节数
const MaxNamespaceLen = 128

// ValidateNamespace 校验 namespace：1 到 128 字节，只允许 [A-Za-z0-9_.:-]
//
// 字符集排除了 "/"，保证 etcd 键 "<prefix>/<namespace>" 的层级不被打乱。
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return xerrors.WithCodef(ErrInvalidNamespace, CodeInvalidNamespace, "namespace is empty")
	}
	if len(namespace) > MaxNamespaceLen {
		return xerrors.WithCodef(ErrInvalidNamespace, CodeInvalidNamespace,
			"namespace length %d exceeds %d", len(namespace), MaxNamespaceLen)
	}
	for i := 0; i < len(namespace); i++ {
		if !isNamespaceByte(namespace[i]) {
			return xerrors.WithCodef(ErrInvalidNamespace, CodeInvalidNamespace,
				"namespace %q has invalid character at %d", namespace, i)
		}
	}
	return nil
}

func isNamespaceByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == ':', c == '-':
		return true
	default:
		return false
	}
}

// NamespaceOf 把字符串、整数或 fmt.Stringer 转成经过校验的 namespace
//
// 整数使用十进制文本，因此 NamespaceOf(42) 与 NamespaceOf("42") 指向同一个计数器。
func NamespaceOf(v any) (string, error) {
	var ns string
	switch x := v.(type) {
	case string:
		ns = x
	case int:
		ns = strconv.Itoa(x)
	case int32:
		ns = strconv.FormatInt(int64(x), 10)
	case int64:
		ns = strconv.FormatInt(x, 10)
	case uint:
		ns = strconv.FormatUint(uint64(x), 10)
	case uint32:
		ns = strconv.FormatUint(uint64(x), 10)
	case uint64:
		ns = strconv.FormatUint(x, 10)
	case fmt.Stringer:
		ns = x.String()
	default:
		return "", xerrors.WithCodef(ErrInvalidNamespace, CodeInvalidNamespace,
			"unsupported namespace type %T", v)
	}
	if err := ValidateNamespace(ns); err != nil {
		return "", err
	}
	return ns, nil
}
