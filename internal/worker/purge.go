package worker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PurgeRetention is how long soft-deleted rows survive before hard
// deletion.
const PurgeRetention = 30 * 24 * time.Hour

// Purger hard-deletes rows that were soft-deleted beyond the retention
// window.
type Purger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPurger creates a purger.
func NewPurger(pool *pgxpool.Pool, logger *zap.Logger) *Purger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{pool: pool, logger: logger}
}

// purgeTargets are processed children-first so foreign keys never block a
// parent delete.
var purgeTargets = []struct {
	table string
	query string
}{
	{"issues", `DELETE FROM issues WHERE deleted_at IS NOT NULL AND deleted_at < $1`},
	{"documents", `DELETE FROM documents WHERE deleted_at IS NOT NULL AND deleted_at < $1`},
	{"calendar_events", `DELETE FROM calendar_events WHERE deleted_at IS NOT NULL AND deleted_at < $1`},
	{"project_members", `DELETE FROM project_members WHERE deleted_at IS NOT NULL AND deleted_at < $1`},
	{"projects", `DELETE FROM projects WHERE deleted_at IS NOT NULL AND deleted_at < $1`},
}

// Run purges every target table once.
func (p *Purger) Run(ctx context.Context) {
	cutoff := time.Now().Add(-PurgeRetention)
	for _, t := range purgeTargets {
		tag, err := p.pool.Exec(ctx, t.query, cutoff)
		if err != nil {
			p.logger.Error("purge failed", zap.String("table", t.table), zap.Error(err))
			continue
		}
		if n := tag.RowsAffected(); n > 0 {
			p.logger.Info("purged soft-deleted rows", zap.String("table", t.table), zap.Int64("rows", n))
		}
	}
}

// Schedule registers the nightly purge on the cron runner.
func (p *Purger) Schedule(c *cron.Cron) error {
	_, err := c.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		p.Run(ctx)
	})
	return err
}
