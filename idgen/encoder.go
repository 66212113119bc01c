package idgen

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Encoder 把计数器整数编码为对外的 ID 字符串
//
// 同一 namespace 内不同整数得到不同字符串，结果只取决于整数与 namespace。
type Encoder struct {
	encoding string
	width    int
	qualify  bool
}

// NewEncoder 按配置创建编码器，cfg 为 nil 时使用默认的 hex 编码
func NewEncoder(cfg *Config) (*Encoder, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{encoding: c.Encoding, width: c.Width, qualify: c.Qualify}, nil
}

// Encode 编码 value，value 必须非负
func (e *Encoder) Encode(namespace string, value int64) string {
	var s string
	switch e.encoding {
	case EncodingDecimal:
		if e.width > 0 {
			s = fmt.Sprintf("%0*d", e.width, value)
		} else {
			s = strconv.FormatInt(value, 10)
		}
	case EncodingBase62:
		s = big.NewInt(value).Text(62)
	default:
		s = strconv.FormatInt(value, 16)
	}
	if e.qualify {
		return namespace + "/" + s
	}
	return s
}

// Decode 是 Encode 的逆操作
func (e *Encoder) Decode(namespace, id string) (int64, error) {
	s := id
	if e.qualify {
		prefix := namespace + "/"
		if !strings.HasPrefix(id, prefix) {
			return 0, invalidInput("id %q does not belong to namespace %s", id, namespace)
		}
		s = strings.TrimPrefix(id, prefix)
	}
	if s == "" || s[0] == '-' || s[0] == '+' {
		return 0, invalidInput("malformed id %q", id)
	}

	switch e.encoding {
	case EncodingDecimal:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, invalidInput("malformed id %q", id)
		}
		return v, nil
	case EncodingBase62:
		v, ok := new(big.Int).SetString(s, 62)
		if !ok || !v.IsInt64() {
			return 0, invalidInput("malformed id %q", id)
		}
		return v.Int64(), nil
	default:
		v, err := strconv.ParseInt(s, 16, 64)
		if err != nil {
			return 0, invalidInput("malformed id %q", id)
		}
		return v, nil
	}
}
