package idgen

import (
	"context"
	"fmt"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/nsid/clog"
)

type etcdStore struct {
	client    *clientv3.Client
	keyPrefix string
	maxValue  int64
	logger    clog.Logger
}

// NewEtcdStore 基于 etcd 键的计数器，键为 "<key_prefix>/<namespace>"，值为十进制文本
//
// Reserve 使用 ModRevision 比较的事务做乐观并发控制，版本冲突时在内部重读重试，
// 直到成功或 ctx 结束。
func NewEtcdStore(client *clientv3.Client, cfg *StoreConfig, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &etcdStore{
		client:    client,
		keyPrefix: c.KeyPrefix,
		maxValue:  c.MaxValue,
		logger:    o.logger.WithNamespace("etcd"),
	}, nil
}

func (s *etcdStore) key(namespace string) string {
	return fmt.Sprintf("%s/%s", s.keyPrefix, namespace)
}

func (s *etcdStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	if err := checkReserveArgs(namespace, size); err != nil {
		return 0, err
	}
	key := s.key(namespace)

	for attempt := 1; ; attempt++ {
		resp, err := s.client.Get(ctx, key)
		if err != nil {
			return 0, storeUnavailable(err, "etcd reserve %s", key)
		}

		var (
			start int64
			cmp   clientv3.Cmp
		)
		if len(resp.Kvs) == 0 {
			cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		} else {
			kv := resp.Kvs[0]
			start, err = strconv.ParseInt(string(kv.Value), 10, 64)
			if err != nil {
				return 0, storeUnavailable(err, "etcd reserve %s", key)
			}
			cmp = clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)
		}

		if !fits(start, size, s.maxValue) {
			return 0, counterOverflow(namespace, start, size)
		}

		txn, err := s.client.Txn(ctx).
			If(cmp).
			Then(clientv3.OpPut(key, strconv.FormatInt(start+size, 10))).
			Commit()
		if err != nil {
			return 0, storeUnavailable(err, "etcd reserve %s", key)
		}
		if txn.Succeeded {
			s.logger.DebugContext(ctx, "block reserved",
				clog.String("key", key),
				clog.Int64("start", start),
				clog.Int64("size", size),
				clog.Int("attempts", attempt))
			return start, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, storeUnavailable(err, "etcd reserve %s", key)
		}
	}
}

func (s *etcdStore) Provision(ctx context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	key := s.key(namespace)
	txn, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "0")).
		Commit()
	if err != nil {
		return false, storeUnavailable(err, "etcd provision %s", key)
	}
	return txn.Succeeded, nil
}

func (s *etcdStore) Peek(ctx context.Context, namespace string) (int64, bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, false, err
	}
	key := s.key(namespace)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return 0, false, storeUnavailable(err, "etcd peek %s", key)
	}
	if len(resp.Kvs) == 0 {
		return 0, false, nil
	}
	next, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, false, storeUnavailable(err, "etcd peek %s", key)
	}
	return next, true, nil
}
