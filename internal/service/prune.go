package service

import (
	"context"
	"log"
	"sync"
	"time"

	"dealerhub-api/internal/repository"
)

// PruneConfig holds configuration for the job pruner.
type PruneConfig struct {
	// Retention is how long finished jobs are kept after their last update.
	// Default: 7 days
	Retention time.Duration

	// Interval is the minimum time between two purges.
	// Default: 1 hour
	Interval time.Duration
}

// DefaultPruneConfig returns default prune configuration.
func DefaultPruneConfig() PruneConfig {
	return PruneConfig{
		Retention: 7 * 24 * time.Hour,
		Interval:  time.Hour,
	}
}

// JobPruner is a BatchWorker that deletes finished fan-out jobs once they
// are older than the retention period. It runs at most once per Interval
// regardless of how often the scheduler ticks.
type JobPruner struct {
	queue  repository.JobQueue
	config PruneConfig
	now    func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewJobPruner creates a new job pruner.
func NewJobPruner(queue repository.JobQueue, config PruneConfig) *JobPruner {
	defaults := DefaultPruneConfig()
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	return &JobPruner{
		queue:  queue,
		config: config,
		now:    time.Now,
	}
}

// Name implements BatchWorker.
func (p *JobPruner) Name() string {
	return "prune"
}

// RunBatch implements BatchWorker.
func (p *JobPruner) RunBatch(ctx context.Context) error {
	now := p.now()

	p.mu.Lock()
	if !p.lastRun.IsZero() && now.Sub(p.lastRun) < p.config.Interval {
		p.mu.Unlock()
		return nil
	}
	p.lastRun = now
	p.mu.Unlock()

	deleted, err := p.queue.PurgeFinishedJobs(ctx, now.Add(-p.config.Retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("[JobPruner] Deleted %d finished jobs older than %v", deleted, p.config.Retention)
	}
	return nil
}

var (
	_ BatchWorker = (*JobPruner)(nil)
	_ BatchWorker = (*BacklogReporter)(nil)
)
