package idgen

import (
	"context"
	"sync"
)

// memoryStore 进程内计数器，用于测试与单进程部署，重启后计数丢失
type memoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	maxValue int64
}

// NewMemoryStore 创建进程内存储，cfg 只使用 MaxValue
func NewMemoryStore(cfg *StoreConfig, opts ...Option) (Store, error) {
	if cfg == nil {
		cfg = &StoreConfig{Driver: DriverMemory}
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &memoryStore{
		counters: make(map[string]int64),
		maxValue: c.MaxValue,
	}, nil
}

func (s *memoryStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	if err := checkReserveArgs(namespace, size); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, storeUnavailable(err, "memory reserve %s", namespace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.counters[namespace]
	if !fits(start, size, s.maxValue) {
		return 0, counterOverflow(namespace, start, size)
	}
	s.counters[namespace] = start + size
	return start, nil
}

func (s *memoryStore) Provision(ctx context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, storeUnavailable(err, "memory provision %s", namespace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[namespace]; ok {
		return false, nil
	}
	s.counters[namespace] = 0
	return true, nil
}

func (s *memoryStore) Peek(ctx context.Context, namespace string) (int64, bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.counters[namespace]
	return next, ok, nil
}
