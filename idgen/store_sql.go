package idgen

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/nsid/clog"
)

// counterRecord 计数器表的一行
type counterRecord struct {
	Namespace string `gorm:"column:namespace;primaryKey;size:128"`
	NextValue int64  `gorm:"column:next_value;not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type sqlStore struct {
	db       *gorm.DB
	table    string
	maxValue int64
	logger   clog.Logger
}

// NewSQLStore 基于 GORM 的计数器，支持 MySQL、PostgreSQL、SQLite
//
// 创建时自动迁移计数器表。Reserve 在一个事务内完成：带上限条件的
// UPDATE next_value = next_value + size（持有行锁）后读回 next_value。
// 行不存在时在事务外 INSERT ... ON CONFLICT DO NOTHING，再重试一次。
func NewSQLStore(ctx context.Context, db *gorm.DB, cfg *StoreConfig, opts ...Option) (Store, error) {
	if db == nil {
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

	if err := db.WithContext(ctx).Table(c.Table).AutoMigrate(&counterRecord{}); err != nil {
		return nil, storeUnavailable(err, "migrate table %s", c.Table)
	}

	return &sqlStore{
		db:       db,
		table:    c.Table,
		maxValue: c.MaxValue,
		logger:   o.logger.WithNamespace("sql"),
	}, nil
}

// 事务内部的控制错误，触发回滚
var (
	errCounterAtLimit = errors.New("counter at limit")
	errCounterMissing = errors.New("counter missing")
)

func (s *sqlStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	if err := checkReserveArgs(namespace, size); err != nil {
		return 0, err
	}
	if size > s.maxValue {
		return 0, counterOverflow(namespace, 0, size)
	}

	start, err := s.reserveTx(ctx, namespace, size)
	if errors.Is(err, errCounterMissing) {
		// 在事务之外补建计数行，避免 MySQL 间隙锁与并发插入互相等待
		if err := s.insertIgnore(s.db.WithContext(ctx), namespace).Error; err != nil {
			return 0, storeUnavailable(err, "sql reserve %s", namespace)
		}
		start, err = s.reserveTx(ctx, namespace, size)
	}
	switch {
	case errors.Is(err, errCounterAtLimit):
		return 0, counterOverflow(namespace, start, size)
	case err != nil:
		return 0, storeUnavailable(err, "sql reserve %s", namespace)
	}

	s.logger.DebugContext(ctx, "block reserved",
		clog.String("namespace", namespace),
		clog.Int64("start", start),
		clog.Int64("size", size))
	return start, nil
}

// reserveTx 带上限条件地推进计数器并读回新值。计数达到上限时返回
// errCounterAtLimit 与当前值，行不存在时返回 errCounterMissing。
func (s *sqlStore) reserveTx(ctx context.Context, namespace string, size int64) (int64, error) {
	var start int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(s.table).
			Where("namespace = ? AND next_value <= ?", namespace, s.maxValue-size).
			Updates(map[string]any{
				"next_value": gorm.Expr("next_value + ?", size),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}

		var rec counterRecord
		err := tx.Table(s.table).Where("namespace = ?", namespace).Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return errCounterMissing
		case err != nil:
			return err
		}

		if res.RowsAffected == 0 {
			start = rec.NextValue
			return errCounterAtLimit
		}
		start = rec.NextValue - size
		return nil
	})
	return start, err
}

func (s *sqlStore) insertIgnore(tx *gorm.DB, namespace string) *gorm.DB {
	return tx.Table(s.table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&counterRecord{Namespace: namespace})
}

func (s *sqlStore) Provision(ctx context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	res := s.insertIgnore(s.db.WithContext(ctx), namespace)
	if res.Error != nil {
		return false, storeUnavailable(res.Error, "sql provision %s", namespace)
	}
	return res.RowsAffected > 0, nil
}

func (s *sqlStore) Peek(ctx context.Context, namespace string) (int64, bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, false, err
	}
	var rec counterRecord
	err := s.db.WithContext(ctx).Table(s.table).Where("namespace = ?", namespace).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeUnavailable(err, "sql peek %s", namespace)
	}
	return rec.NextValue, true, nil
}
