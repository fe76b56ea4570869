package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dealerhub-api/internal/crypto"
	"dealerhub-api/internal/inventory"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
)

// ErrSyncInProgress is returned when a sync for the same user and provider is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

var errMissingListingID = errors.New("item has no listing id")

// SyncStage names the step at which a sync failed.
type SyncStage string

const (
	StageCredentials SyncStage = "credentials"
	StageSource      SyncStage = "source"
	StageDecrypt     SyncStage = "decrypt"
	StageListPage    SyncStage = "list_page"
)

// SyncFailedError reports an aborted sync. Result carries the counts gathered
// before the failure and is nil when nothing was processed.
type SyncFailedError struct {
	UserID   string
	Provider model.Provider
	Stage    SyncStage
	Err      error
	Result   *model.SyncResult
}

// Error implements the error interface.
func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("sync %s/%s failed at %s: %v", e.UserID, e.Provider, e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *SyncFailedError) Unwrap() error {
	return e.Err
}

// SyncConfig holds the paging parameters of the sync engine.
type SyncConfig struct {
	// PageSize is the number of listings requested per page, at most inventory.MaxPageSize.
	PageSize int
	// MaxPages stops a sync whose source keeps returning full pages.
	MaxPages int
}

// DefaultSyncConfig returns the default sync configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PageSize: inventory.MaxPageSize,
		MaxPages: 50,
	}
}

// SyncService pulls listings from the inventory sources, records new and
// repeat sightings and fans out jobs for listings seen for the first time.
type SyncService struct {
	creds    repository.CredentialRepository
	listings repository.ListingRepository
	cipher   crypto.SecretCipher
	sources  inventory.Registry
	fanout   *FanoutBuilder
	config   SyncConfig
	now      func() time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(
	creds repository.CredentialRepository,
	listings repository.ListingRepository,
	cipher crypto.SecretCipher,
	sources inventory.Registry,
	fanout *FanoutBuilder,
	config SyncConfig,
) *SyncService {
	if config.PageSize <= 0 || config.PageSize > inventory.MaxPageSize {
		config.PageSize = inventory.MaxPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultSyncConfig().MaxPages
	}
	return &SyncService{
		creds:    creds,
		listings: listings,
		cipher:   cipher,
		sources:  sources,
		fanout:   fanout,
		config:   config,
		now:      time.Now,
	}
}

// SyncUser runs one full sync for userID and provider.
//
// A missing credential is not an error: the result has Synced=false and
// Reason=no_credentials. A failed page fetch stops the sync; the returned
// error is a *SyncFailedError and the partial result is returned alongside it.
func (s *SyncService) SyncUser(ctx context.Context, userID string, provider model.Provider) (*model.SyncResult, error) {
	cred, err := s.creds.Get(ctx, userID, provider)
	if err != nil {
		return nil, s.failed(userID, provider, StageCredentials, err, nil)
	}
	if cred == nil {
		return &model.SyncResult{Synced: false, Reason: model.ReasonNoCredentials}, nil
	}

	src, err := s.sources.For(provider)
	if err != nil {
		return nil, s.failed(userID, provider, StageSource, err, nil)
	}

	secret, err := s.cipher.Decrypt(cred.EncryptedSecret, cred.SecretIV)
	if err != nil {
		return nil, s.failed(userID, provider, StageDecrypt, err, nil)
	}
	creds := inventory.Credentials{Username: cred.Username, Password: secret}

	started := s.now()
	result := &model.SyncResult{}
	var pageErr error

	for page := 1; page <= s.config.MaxPages; page++ {
		items, err := src.ListPage(ctx, creds, page, s.config.PageSize, inventory.SortByModified, inventory.SortDescending)
		if err != nil {
			pageErr = fmt.Errorf("page %d: %w", page, err)
			break
		}

		for _, item := range items {
			result.TotalSeen++
			isNew, err := s.processItem(ctx, src, creds, userID, provider, item)
			if err != nil {
				log.Printf("[SyncService] %s/%s: skipping item on page %d: %v", userID, provider, page, err)
				continue
			}
			if isNew {
				result.NewListings++
			}
		}

		if len(items) < s.config.PageSize {
			break
		}
		if page == s.config.MaxPages {
			log.Printf("[SyncService] %s/%s: stopped after %d full pages", userID, provider, page)
		}
	}

	// Partial progress counts as a sync; only credential failures leave last_sync_at alone.
	if err := s.creds.TouchLastSync(ctx, userID, provider, s.now()); err != nil {
		log.Printf("[SyncService] %s/%s: failed to record last sync: %v", userID, provider, err)
	}

	if pageErr != nil {
		return result, s.failed(userID, provider, StageListPage, pageErr, result)
	}

	result.Synced = true
	log.Printf("[SyncService] %s/%s: synced %d listings (%d new) in %v",
		userID, provider, result.TotalSeen, result.NewListings, s.now().Sub(started).Round(time.Millisecond))
	return result, nil
}

// processItem diffs one upstream summary against the store. It reports whether
// the listing was inserted by this call.
func (s *SyncService) processItem(ctx context.Context, src inventory.Source, creds inventory.Credentials, userID string, provider model.Provider, item inventory.Item) (bool, error) {
	listingID, ok := inventory.ListingID(item)
	if !ok {
		return false, errMissingListingID
	}

	existing, err := s.listings.Find(ctx, userID, provider, listingID)
	if err != nil {
		return false, err
	}

	now := s.now()
	if existing != nil {
		return false, s.recordSighting(ctx, existing, item, now)
	}

	detail, err := src.FetchDetail(ctx, creds, listingID)
	if err != nil {
		log.Printf("[SyncService] %s/%s: detail for %s unavailable, keeping summary: %v", userID, provider, listingID, err)
		detail = nil
	}

	details := inventory.MergeItems(item, detail)
	images := inventory.Extract(detail).Images
	if len(images) == 0 {
		images = inventory.Extract(item).Images
	}

	listing := &model.Listing{
		UserID:    userID,
		Provider:  provider,
		ListingID: listingID,
		Details:   details,
		Images:    images,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(images) > 0 {
		primary := images[0]
		listing.PrimaryImageURL = &primary
	}

	imageJobs, posts := s.fanout.Build(listing, inventory.Extract(inventory.Item(details)))
	return s.listings.InsertWithJobs(ctx, listing, imageJobs, posts)
}

// recordSighting touches last_seen and fills make/model the stored details lack.
func (s *SyncService) recordSighting(ctx context.Context, existing *model.Listing, item inventory.Item, now time.Time) error {
	if err := s.listings.TouchLastSeen(ctx, existing.UserID, existing.Provider, existing.ListingID, now); err != nil {
		return err
	}
	if !existing.Details.Missing("make") && !existing.Details.Missing("model") {
		return nil
	}

	ex := inventory.Extract(item)
	partial := model.Details{}
	if ex.Make != "" {
		partial["make"] = ex.Make
	}
	if ex.Model != "" {
		partial["model"] = ex.Model
	}
	if len(partial) == 0 {
		return nil
	}
	if err := s.listings.MergeDetails(ctx, existing.UserID, existing.Provider, existing.ListingID, partial); err != nil {
		log.Printf("[SyncService] %s/%s: merge details for %s: %v", existing.UserID, existing.Provider, existing.ListingID, err)
	}
	return nil
}

// GetStatus reports the freshness of a user's stored inventory.
func (s *SyncService) GetStatus(ctx context.Context, userID string, provider model.Provider) (*model.SyncStatus, error) {
	cred, err := s.creds.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	stats, err := s.listings.Stats(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	status := &model.SyncStatus{
		LatestFirstSeen: stats.LatestFirstSeen,
		TotalListings:   stats.TotalListings,
	}
	if cred != nil {
		status.LastSyncAt = cred.LastSyncAt
	}
	return status, nil
}

// ListListings returns stored listings newest first.
func (s *SyncService) ListListings(ctx context.Context, userID string, provider model.Provider, limit, offset int) ([]model.Listing, int64, error) {
	return s.listings.List(ctx, userID, provider, limit, offset)
}

func (s *SyncService) failed(userID string, provider model.Provider, stage SyncStage, err error, result *model.SyncResult) error {
	log.Printf("[SyncService] %s/%s: sync failed at %s: %v", userID, provider, stage, err)
	return &SyncFailedError{UserID: userID, Provider: provider, Stage: stage, Err: err, Result: result}
}
