package service

import (
	"context"
	"time"

	"github.com/noseryoung/course-rating/internal/logging"
)

// RetentionSweeper periodically removes users older than MaxAge.
type RetentionSweeper struct {
	users    *UserService
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	log      logging.Logger
}

func NewRetentionSweeper(users *UserService, maxAge, interval time.Duration, now func() time.Time, log logging.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		users:    users,
		maxAge:   maxAge,
		interval: interval,
		now:      now,
		log:      log.With("component", "retention"),
	}
}

// Run sweeps once per interval until ctx is done.  A zero interval
// disables the sweeper and Run returns immediately.
func (r *RetentionSweeper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info(ctx, "retention sweeper disabled")
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of deleted users.
func (r *RetentionSweeper) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.users.DeleteOldUsers(ctx, cutoff)
	if err != nil {
		r.log.Error(ctx, "retention sweep incomplete", "deleted", n, "err", err)
		return n
	}
	if n > 0 {
		r.log.Info(ctx, "retention sweep done", "deleted", n, "cutoff", cutoff)
	}
	return n
}
