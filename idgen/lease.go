package idgen

// lease 从计数器预留的一段连续整数 [start, start+size)，只属于一个 Generator
//
// 不变式：0 <= next <= size，next == size 时耗尽。
type lease struct {
	start int64
	size  int64
	next  int64
}

func (l *lease) exhausted() bool {
	return l == nil || l.next >= l.size
}

// take 调用前必须确认未耗尽
func (l *lease) take() int64 {
	v := l.start + l.next
	l.next++
	return v
}

func (l *lease) info() LeaseInfo {
	if l == nil {
		return LeaseInfo{}
	}
	return LeaseInfo{Start: l.start, Size: l.size, Next: l.next}
}

// LeaseInfo 租约的只读快照
type LeaseInfo struct {
	Start int64
	Size  int64
	Next  int64
}

// Remaining 租约中尚未发放的数量
func (i LeaseInfo) Remaining() int64 {
	return i.Size - i.Next
}
