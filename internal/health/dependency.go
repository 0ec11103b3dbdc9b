package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/domain"
)

type DBChecker struct {
	db *gorm.DB
}

// NewDBChecker returns nil when db is nil so callers can pass it straight to
// NewProbeRunner.
func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db", Healthy: true}
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type OutboxStatsReader interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxChecker reports unhealthy when the pending notification backlog grows
// past maxPending, which means the dispatcher is not keeping up or is stuck.
type OutboxChecker struct {
	stats      OutboxStatsReader
	maxPending int64
}

func NewOutboxChecker(stats OutboxStatsReader, maxPending int64) Checker {
	if stats == nil || maxPending <= 0 {
		return nil
	}
	return &OutboxChecker{stats: stats, maxPending: maxPending}
}

func (c *OutboxChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "outbox", Healthy: true}
	stats, err := c.stats.Stats(ctx)
	switch {
	case err != nil:
		res.Healthy = false
		res.Error = err.Error()
	case stats.Pending > c.maxPending:
		res.Healthy = false
		res.Error = fmt.Sprintf("pending backlog %d exceeds %d", stats.Pending, c.maxPending)
	}
	return res
}
