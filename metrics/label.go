package metrics

// Label 指标标签
//
// 标签值应是低基数的，namespace、generator_id 这类值不要作为标签。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
