package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/metrics"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

type standaloneLimiter struct {
	cfg     *Config
	logger  clog.Logger
	metrics *limiterMetrics
	buckets sync.Map // map[string]*bucket

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newStandalone(cfg *Config, logger clog.Logger, meter metrics.Meter) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:     cfg,
		logger:  logger,
		metrics: newLimiterMetrics(meter, ModeStandalone),
		stopCh:  make(chan struct{}),
	}
	go l.cleanup(cfg.CleanupInterval, cfg.IdleTimeout)

	logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout))
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.valid() || n <= 0 {
		return false, ErrInvalidLimit
	}

	b := l.bucket(key, limit)
	now := time.Now()

	b.mu.Lock()
	allowed := b.limiter.AllowN(now, n)
	b.lastSeen = now
	b.mu.Unlock()

	l.metrics.record(ctx, allowed, nil)
	if !allowed {
		l.logger.Debug("rate limit exceeded",
			clog.String("key", key),
			clog.Float64("rate", limit.Rate),
			clog.Int("burst", limit.Burst),
			clog.Int("requested", n))
	}
	return allowed, nil
}

// 同一个 key 在规则变化后使用新桶，旧桶由 cleanup 回收
func (l *standaloneLimiter) bucket(key string, limit Limit) *bucket {
	cacheKey := fmt.Sprintf("%s:%v:%d", key, limit.Rate, limit.Burst)
	if v, ok := l.buckets.Load(cacheKey); ok {
		return v.(*bucket)
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst),
		lastSeen: time.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(cacheKey, b)
	return actual.(*bucket)
}

func (l *standaloneLimiter) cleanup(interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now(), idleTimeout)
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) evictIdle(now time.Time, idleTimeout time.Duration) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()

		if idle > idleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	if count > 0 {
		l.logger.Debug("evicted idle buckets", clog.Int("count", count))
	}
	return count
}

func (l *standaloneLimiter) size() int {
	n := 0
	l.buckets.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func (l *standaloneLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	return nil
}
