package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealerhub-api/internal/model"
)

type recordingQueue struct {
	cutoffs []time.Time
	err     error
}

func (q *recordingQueue) EnqueueImageJobs(ctx context.Context, jobs []model.ImageProcessingJob) error {
	return nil
}

func (q *recordingQueue) EnqueueSocialJobs(ctx context.Context, jobs []model.SocialPostJob) error {
	return nil
}

func (q *recordingQueue) CountJobs(ctx context.Context, status model.JobStatus) (*model.JobCounts, error) {
	return &model.JobCounts{}, nil
}

func (q *recordingQueue) PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	q.cutoffs = append(q.cutoffs, before)
	return 3, q.err
}

func TestJobPruner_RunsOncePerInterval(t *testing.T) {
	queue := &recordingQueue{}
	p := NewJobPruner(queue, PruneConfig{Retention: 48 * time.Hour, Interval: time.Hour})
	now := testNow
	p.now = func() time.Time { return now }
	ctx := context.Background()

	for _, step := range []time.Duration{0, 10 * time.Minute, 50 * time.Minute} {
		now = now.Add(step)
		if err := p.RunBatch(ctx); err != nil {
			t.Fatalf("RunBatch() error: %v", err)
		}
	}

	if len(queue.cutoffs) != 2 {
		t.Fatalf("purges = %d, want 2", len(queue.cutoffs))
	}
	if want := testNow.Add(-48 * time.Hour); !queue.cutoffs[0].Equal(want) {
		t.Errorf("first cutoff = %v, want %v", queue.cutoffs[0], want)
	}
}

func TestJobPruner_Defaults(t *testing.T) {
	p := NewJobPruner(&recordingQueue{}, PruneConfig{})
	if p.config != DefaultPruneConfig() {
		t.Errorf("config = %+v, want defaults", p.config)
	}
	if p.Name() != "prune" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestJobPruner_PropagatesError(t *testing.T) {
	queue := &recordingQueue{err: errors.New("disk full")}
	p := NewJobPruner(queue, PruneConfig{})
	if err := p.RunBatch(context.Background()); err == nil {
		t.Error("RunBatch() error = nil, want the purge failure")
	}
}

func TestJobPruner_PurgesStoredJobs(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})
	p := NewJobPruner(env.listings, PruneConfig{})
	if err := p.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch() against SQLite error: %v", err)
	}
}
