package service

import (
	"context"
	"log"
	"sync"

	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
)

// BacklogReporter is a BatchWorker that logs the queued job counts whenever they change.
// It stands in for the image and social workers, which run out of process.
type BacklogReporter struct {
	queue repository.JobQueue

	mu   sync.Mutex
	last model.JobCounts
}

// NewBacklogReporter creates a new backlog reporter.
func NewBacklogReporter(queue repository.JobQueue) *BacklogReporter {
	return &BacklogReporter{queue: queue}
}

// Name implements BatchWorker.
func (r *BacklogReporter) Name() string {
	return "backlog"
}

// RunBatch implements BatchWorker.
func (r *BacklogReporter) RunBatch(ctx context.Context) error {
	counts, err := r.queue.CountJobs(ctx, model.JobQueued)
	if err != nil {
		return err
	}

	r.mu.Lock()
	changed := *counts != r.last
	r.last = *counts
	r.mu.Unlock()

	if changed {
		log.Printf("[BacklogReporter] Queued jobs: image=%d social=%d", counts.ImageJobs, counts.SocialJobs)
	}
	return nil
}

// Last returns the counts seen by the most recent batch.
func (r *BacklogReporter) Last() model.JobCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
