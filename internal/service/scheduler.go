package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"

	"github.com/robfig/cron/v3"
)

// BatchWorker is a per-tick job consumer, such as the image or social worker.
type BatchWorker interface {
	Name() string
	RunBatch(ctx context.Context) error
}

// SchedulerConfig holds configuration for the sync scheduler.
type SchedulerConfig struct {
	// TickInterval is how often due users are dispatched.
	// Default: 5 seconds
	TickInterval time.Duration

	// ResyncInterval is the minimum age of last_sync_at before a user is due again.
	// Default: 60 seconds
	ResyncInterval time.Duration

	// Providers are swept in order on every tick.
	Providers []model.Provider
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:   5 * time.Second,
		ResyncInterval: 60 * time.Second,
		Providers:      model.Providers,
	}
}

// SyncScheduler periodically dispatches syncs for every user whose last sync is stale.
type SyncScheduler struct {
	creds   repository.CredentialRepository
	trigger *BackgroundTrigger
	workers []BatchWorker
	config  SchedulerConfig
	now     func() time.Time

	cron      *cron.Cron
	entryID   cron.EntryID
	isRunning bool
	mu        sync.Mutex
	firstRun  sync.WaitGroup
}

// NewSyncScheduler creates a new sync scheduler.
func NewSyncScheduler(creds repository.CredentialRepository, trigger *BackgroundTrigger, config SchedulerConfig, workers ...BatchWorker) *SyncScheduler {
	defaults := DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = defaults.ResyncInterval
	}
	if len(config.Providers) == 0 {
		config.Providers = defaults.Providers
	}

	return &SyncScheduler{
		creds:   creds,
		trigger: trigger,
		workers: workers,
		config:  config,
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cron.DefaultLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Start registers the tick and starts the scheduler. One tick also runs
// immediately through the same job chain, so it never overlaps a scheduled tick.
func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.entryID == 0 {
		spec := fmt.Sprintf("@every %s", s.config.TickInterval)
		id, err := s.cron.AddFunc(spec, s.tick)
		if err != nil {
			return fmt.Errorf("cron.AddFunc: %w", err)
		}
		s.entryID = id
	}
	job := s.cron.Entry(s.entryID).WrappedJob
	s.cron.Start()
	s.isRunning = true

	log.Printf("[SyncScheduler] Started - Tick: %v, Resync: %v, Providers: %v",
		s.config.TickInterval, s.config.ResyncInterval, s.config.Providers)

	s.firstRun.Add(1)
	go func() {
		defer s.firstRun.Done()
		job.Run()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running tick, including the one
// Start ran immediately, to return.
// Syncs already dispatched keep running; use BackgroundTrigger.Wait for those.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.firstRun.Wait()
	s.isRunning = false
	log.Printf("[SyncScheduler] Stopped")
}

func (s *SyncScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.RunNow(ctx)
	s.runWorkers(ctx)
}

// RunNow sweeps every provider once and returns the number of syncs dispatched.
func (s *SyncScheduler) RunNow(ctx context.Context) int {
	now := s.now()
	dispatched := 0

	for _, provider := range s.config.Providers {
		creds, err := s.creds.ListActive(ctx, provider)
		if err != nil {
			log.Printf("[SyncScheduler] Error listing %s credentials: %v", provider, err)
			continue
		}
		for _, c := range creds {
			if !s.isDue(c, now) {
				continue
			}
			if s.trigger.StartSync(ctx, c.UserID, provider) {
				dispatched++
			}
		}
	}

	if dispatched > 0 {
		log.Printf("[SyncScheduler] Dispatched %d sync(s)", dispatched)
	}
	return dispatched
}

func (s *SyncScheduler) isDue(c model.Credential, now time.Time) bool {
	if c.LastSyncAt == nil {
		return true
	}
	return now.Sub(*c.LastSyncAt) >= s.config.ResyncInterval
}

func (s *SyncScheduler) runWorkers(ctx context.Context) {
	for _, w := range s.workers {
		if err := w.RunBatch(ctx); err != nil {
			log.Printf("[SyncScheduler] %s batch error: %v", w.Name(), err)
		}
	}
}
