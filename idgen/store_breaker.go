package idgen

import (
	"context"

	"github.com/ceyewan/nsid/breaker"
	"github.com/ceyewan/nsid/xerrors"
)

// breakerStore 用熔断器保护存储，熔断打开时直接返回 ErrStoreUnavailable
type breakerStore struct {
	next Store
	key  string
	brk  breaker.Breaker
}

func newBreakerStore(next Store, driver string, cfg *breaker.Config, opts ...Option) (Store, error) {
	o := applyOptions(opts)
	brk, err := breaker.New(cfg,
		breaker.WithLogger(o.logger),
		breaker.WithMeter(o.meter),
		breaker.WithIsSuccessful(countsAsSuccess))
	if err != nil {
		return nil, err
	}
	return &breakerStore{next: next, key: "store:" + driver, brk: brk}, nil
}

// countsAsSuccess 只有存储不可用才计为熔断失败，业务错误说明后端是健康的
func countsAsSuccess(err error) bool {
	return err == nil || !IsRetryable(err)
}

func (s *breakerStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	v, err := s.brk.Execute(ctx, s.key, func() (any, error) {
		return s.next.Reserve(ctx, namespace, size)
	})
	if err != nil {
		return 0, s.mapErr(err, namespace)
	}
	return v.(int64), nil
}

func (s *breakerStore) Provision(ctx context.Context, namespace string) (bool, error) {
	v, err := s.brk.Execute(ctx, s.key, func() (any, error) {
		return s.next.Provision(ctx, namespace)
	})
	if err != nil {
		return false, s.mapErr(err, namespace)
	}
	return v.(bool), nil
}

// Peek 只用于诊断，不经过熔断器
func (s *breakerStore) Peek(ctx context.Context, namespace string) (int64, bool, error) {
	return s.next.Peek(ctx, namespace)
}

func (s *breakerStore) mapErr(err error, namespace string) error {
	if xerrors.Is(err, breaker.ErrOpenState) {
		return storeUnavailable(err, "%s %s", s.key, namespace)
	}
	return err
}
