package connector

import (
	"context"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/xerrors"
)

// etcdHealthKey 健康检查读取的 key，不存在也视为健康
const etcdHealthKey = "/nsid/health"

type etcdConnector struct {
	*base
	cfg    *EtcdConfig
	mu     sync.RWMutex
	client *clientv3.Client
}

// NewEtcd 创建 Etcd 连接器
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, configErr("etcd config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid etcd config")
	}

	b, err := newBase("etcd", cfg.Name, opts)
	if err != nil {
		return nil, err
	}
	return &etcdConnector{base: b, cfg: cfg}, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	c.logger.Info("connecting to etcd", clog.Any("endpoints", c.cfg.Endpoints))

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.cfg.Endpoints,
		Username:             c.cfg.Username,
		Password:             c.cfg.Password,
		DialTimeout:          c.cfg.DialTimeout,
		DialKeepAliveTime:    c.cfg.KeepAliveTime,
		DialKeepAliveTimeout: c.cfg.KeepAliveTimeout,
		Context:              context.WithoutCancel(ctx),
	})
	if err != nil {
		c.logger.Error("failed to create etcd client", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", c.name, err)
	}

	err = c.connectWithRetry(ctx, c.cfg.RetryConfig, func(ctx context.Context) error {
		_, err := client.Get(ctx, etcdHealthKey)
		return err
	})
	if err != nil {
		_ = client.Close()
		c.logger.Error("failed to connect to etcd", clog.Error(err))
		return err
	}

	c.client = client
	c.logger.Info("connected to etcd", clog.Any("endpoints", c.cfg.Endpoints))
	return nil
}

func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	if err != nil {
		c.logger.Error("failed to close etcd connection", clog.Error(err))
		return err
	}
	c.logger.Info("etcd connection closed")
	return nil
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "etcd connector[%s]", c.name)
	}
	return c.runCheck(ctx, func(ctx context.Context) error {
		_, err := client.Get(ctx, etcdHealthKey)
		return err
	})
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
