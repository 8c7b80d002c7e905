// Package collect runs the periodic collection job: refresh every
// registered product, append the observed prices to history, and prune
// expired rows. It is the only writer of history snapshots.
package collect

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"resalescout/internal/history"
	"resalescout/internal/model"
	"resalescout/internal/registry"
)

// DefaultSchedule collects every six hours.
const DefaultSchedule = "0 */6 * * *"

// Collector owns the cron loop and the single collection pass.
type Collector struct {
	registry *registry.Registry
	history  *history.DB
	queue    *registry.Queue
	logger   *log.Logger
	cron     *cron.Cron
}

// New wires a collector. The queue caps API throughput during a pass.
func New(reg *registry.Registry, hist *history.DB, queue *registry.Queue, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		registry: reg,
		history:  hist,
		queue:    queue,
		logger:   logger,
	}
}

// Start schedules collection passes under the given cron spec and returns
// once the scheduler is running. An empty spec uses DefaultSchedule.
func (c *Collector) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	c.cron = cron.New()
	_, err := c.cron.AddFunc(spec, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.logger.Printf("collection pass failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("collect: bad schedule %q: %w", spec, err)
	}
	c.cron.Start()
	c.logger.Printf("collector started, schedule %q", spec)
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (c *Collector) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}

// RunOnce performs one full collection pass. Per-product refresh failures
// are logged and skipped; the pass keeps going so one dead listing cannot
// starve the rest of the registry of history.
func (c *Collector) RunOnce(ctx context.Context) error {
	started := time.Now()
	failures := c.registry.RefreshAll(ctx, c.queue)
	if err := ctx.Err(); err != nil {
		return err
	}

	var recorded int
	var liveIDs []string
	for _, p := range c.registry.List() {
		liveIDs = append(liveIDs, p.ID)
		if failures[p.ID] != nil {
			continue
		}
		if p.Status != model.StatusSuccess {
			continue
		}
		if err := c.history.Record(p, time.Now()); err != nil {
			c.logger.Printf("record %s: %v", p.ID, err)
			continue
		}
		recorded++
	}

	pruned, err := c.history.Prune(time.Now(), liveIDs)
	if err != nil {
		return err
	}
	c.logger.Printf("collection pass done in %s: %d recorded, %d failed, %d pruned",
		time.Since(started).Round(time.Millisecond), recorded, len(failures), pruned)
	return nil
}
