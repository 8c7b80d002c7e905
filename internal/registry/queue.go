package registry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Queue runs work items one at a time behind a rate limiter. Bulk refresh
// uses it so a fifty-product import drains steadily instead of bursting
// against the API quota.
type Queue struct {
	limiter *rate.Limiter
}

// NewQueue builds a queue allowing perMinute tasks, with no burst beyond
// the first task.
func NewQueue(perMinute int) *Queue {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &Queue{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Run executes fn for each ID in order, waiting on the limiter between
// tasks. Failures are collected per ID; a canceled context stops the run
// and the remaining IDs are not attempted.
func (q *Queue) Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) map[string]error {
	failures := make(map[string]error)
	for _, id := range ids {
		if err := q.limiter.Wait(ctx); err != nil {
			failures[id] = err
			return failures
		}
		if err := fn(ctx, id); err != nil {
			failures[id] = err
		}
	}
	return failures
}
