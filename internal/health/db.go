package health

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBChecker pings a Postgres connection pool.
type DBChecker struct {
	pool *pgxpool.Pool
}

func NewDBChecker(pool *pgxpool.Pool) *DBChecker {
	return &DBChecker{pool: pool}
}

func (c *DBChecker) Type() CheckType { return CheckTypeDatabase }

func (c *DBChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.pool.Ping(ctx)
	res := Result{Healthy: err == nil, Duration: time.Since(start), CheckedAt: start}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
