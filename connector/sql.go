package connector

import (
	"context"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/xerrors"
)

// gormConnector MySQL、PostgreSQL、SQLite 共用的 GORM 连接器
type gormConnector struct {
	*base
	dialect string
	target  string // 仅用于日志，不含密码
	retry   RetryConfig
	pool    PoolConfig
	open    func() gorm.Dialector

	mu sync.RWMutex
	db *gorm.DB
}

// NewMySQL 创建 MySQL 连接器
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, configErr("mysql config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid mysql config")
	}

	dsn := cfg.dsn()
	return newGormConnector("mysql", cfg.Name, cfg.Host+"/"+cfg.Database, cfg.RetryConfig, cfg.PoolConfig, opts,
		func() gorm.Dialector { return mysql.Open(dsn) })
}

// NewPostgreSQL 创建 PostgreSQL 连接器
func NewPostgreSQL(cfg *PostgreSQLConfig, opts ...Option) (PostgreSQLConnector, error) {
	if cfg == nil {
		return nil, configErr("postgres config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid postgres config")
	}

	dsn := cfg.dsn()
	return newGormConnector("postgres", cfg.Name, cfg.Host+"/"+cfg.Database, cfg.RetryConfig, cfg.PoolConfig, opts,
		func() gorm.Dialector { return postgres.Open(dsn) })
}

// NewSQLite 创建 SQLite 连接器
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, configErr("sqlite config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid sqlite config")
	}

	path := cfg.Path
	return newGormConnector("sqlite", cfg.Name, path, cfg.RetryConfig, cfg.PoolConfig, opts,
		func() gorm.Dialector { return sqlite.Open(path) })
}

func newGormConnector(dialect, name, target string, retry RetryConfig, pool PoolConfig, opts []Option, open func() gorm.Dialector) (*gormConnector, error) {
	b, err := newBase(dialect, name, opts)
	if err != nil {
		return nil, err
	}
	return &gormConnector{
		base:    b,
		dialect: dialect,
		target:  target,
		retry:   retry,
		pool:    pool,
		open:    open,
	}, nil
}

func (c *gormConnector) Dialect() string {
	return c.dialect
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.logger.Info("connecting to database", clog.String("target", c.target))

	var db *gorm.DB
	err := c.connectWithRetry(ctx, c.retry, func(ctx context.Context) error {
		opened, err := gorm.Open(c.open(), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return err
		}

		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxIdleConns(c.pool.MaxIdleConns)
		sqlDB.SetMaxOpenConns(c.pool.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(c.pool.ConnMaxLifetime)

		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		if c.tp != nil {
			if err := opened.Use(otelgorm.NewPlugin(otelgorm.WithTracerProvider(c.tp))); err != nil {
				_ = sqlDB.Close()
				return xerrors.Wrap(err, "instrument gorm tracing")
			}
		}
		db = opened
		return nil
	})
	if err != nil {
		c.logger.Error("failed to connect to database", clog.Error(err))
		return err
	}

	c.db = db
	c.logger.Info("connected to database", clog.String("target", c.target))
	return nil
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database connection", clog.Error(err))
		return err
	}
	c.logger.Info("database connection closed")
	return nil
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.dialect, c.name)
	}
	return c.runCheck(ctx, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
