package service

import (
	"context"
	"log"
	"sync"
	"time"

	"dealerhub-api/internal/cache"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
)

// Syncer runs a single user sync.
type Syncer interface {
	SyncUser(ctx context.Context, userID string, provider model.Provider) (*model.SyncResult, error)
}

// TriggerConfig holds configuration for the background trigger.
type TriggerConfig struct {
	// MinInterval skips read-path syncs when the last one finished more recently.
	MinInterval time.Duration
	// Timeout bounds a background sync.
	Timeout time.Duration
}

// BackgroundTrigger starts syncs outside the request that asked for them.
// At most one sync per user and provider runs at a time; the guard decides.
type BackgroundTrigger struct {
	syncer Syncer
	creds  repository.CredentialRepository
	guard  cache.Guard
	config TriggerConfig
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewBackgroundTrigger creates a new background trigger.
func NewBackgroundTrigger(syncer Syncer, creds repository.CredentialRepository, guard cache.Guard, config TriggerConfig) *BackgroundTrigger {
	if config.MinInterval <= 0 {
		config.MinInterval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	return &BackgroundTrigger{
		syncer: syncer,
		creds:  creds,
		guard:  guard,
		config: config,
		now:    time.Now,
	}
}

func guardKey(userID string, provider model.Provider) string {
	return userID + ":" + string(provider)
}

// MaybeStartBackgroundSync refreshes a user's inventory from a read path.
// Nothing happens when a sync is in flight or the last one is recent.
// It reports whether a sync was started; errors are only logged.
func (t *BackgroundTrigger) MaybeStartBackgroundSync(ctx context.Context, userID string, provider model.Provider) bool {
	return t.start(ctx, userID, provider, true)
}

// StartSync starts a background sync unless one is already in flight.
func (t *BackgroundTrigger) StartSync(ctx context.Context, userID string, provider model.Provider) bool {
	return t.start(ctx, userID, provider, false)
}

func (t *BackgroundTrigger) start(ctx context.Context, userID string, provider model.Provider, checkFresh bool) bool {
	key := guardKey(userID, provider)
	token, ok, err := t.guard.TryAcquire(ctx, key)
	if err != nil {
		log.Printf("[BackgroundTrigger] %s: guard unavailable: %v", key, err)
		return false
	}
	if !ok {
		return false
	}

	if checkFresh {
		fresh, err := t.isFresh(ctx, userID, provider)
		if err != nil || fresh {
			if err != nil {
				log.Printf("[BackgroundTrigger] %s: credential lookup failed: %v", key, err)
			}
			t.release(key, token)
			return false
		}
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.release(key, token)

		// The triggering request may already be done; the sync runs to completion.
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.config.Timeout)
		defer cancel()

		if _, err := t.syncer.SyncUser(syncCtx, userID, provider); err != nil {
			log.Printf("[BackgroundTrigger] %s: background sync failed: %v", key, err)
		}
	}()
	return true
}

// isFresh reports whether there is no credential or it synced within MinInterval.
func (t *BackgroundTrigger) isFresh(ctx context.Context, userID string, provider model.Provider) (bool, error) {
	cred, err := t.creds.Get(ctx, userID, provider)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return true, nil
	}
	if cred.LastSyncAt == nil {
		return false, nil
	}
	return t.now().Sub(*cred.LastSyncAt) < t.config.MinInterval, nil
}

// SyncNow runs a sync in the caller's goroutine under the same guard,
// bounded by the configured timeout.
// It returns ErrSyncInProgress when another sync holds the key.
func (t *BackgroundTrigger) SyncNow(ctx context.Context, userID string, provider model.Provider) (*model.SyncResult, error) {
	key := guardKey(userID, provider)
	token, ok, err := t.guard.TryAcquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer t.release(key, token)

	syncCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	return t.syncer.SyncUser(syncCtx, userID, provider)
}

// InFlight returns the number of syncs the guard currently holds.
func (t *BackgroundTrigger) InFlight() int {
	return t.guard.InFlight()
}

// Wait blocks until every background sync started so far has finished.
func (t *BackgroundTrigger) Wait() {
	t.wg.Wait()
}

func (t *BackgroundTrigger) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.guard.Release(ctx, key, token); err != nil {
		log.Printf("[BackgroundTrigger] %s: release failed: %v", key, err)
	}
}
