package connector

import (
	"context"
	"sync"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/xerrors"
)

type redisConnector struct {
	*base
	cfg    *RedisConfig
	mu     sync.RWMutex
	client *redis.Client
}

// NewRedis 创建 Redis 连接器
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, configErr("redis config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid redis config")
	}

	b, err := newBase("redis", cfg.Name, opts)
	if err != nil {
		return nil, err
	}
	return &redisConnector{base: b, cfg: cfg}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	c.logger.Info("connecting to redis", clog.String("addr", c.cfg.Addr), clog.Int("db", c.cfg.DB))

	client := redis.NewClient(&redis.Options{
		Addr:         c.cfg.Addr,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		PoolSize:     c.cfg.PoolSize,
		MinIdleConns: c.cfg.MinIdleConns,
		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	err := c.connectWithRetry(ctx, c.cfg.RetryConfig, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		c.logger.Error("failed to connect to redis", clog.Error(err))
		return err
	}
	if c.tp != nil {
		if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(c.tp)); err != nil {
			_ = client.Close()
			return xerrors.Wrap(err, "instrument redis tracing")
		}
	}

	c.client = client
	c.logger.Info("connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	if err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "redis connector[%s]", c.name)
	}
	return c.runCheck(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func (c *redisConnector) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
