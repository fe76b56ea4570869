package repository

import (
	"context"
	"fmt"
	"time"

	"dealerhub-api/internal/model"
)

// CredentialRepository defines inventory-credential data access methods.
// Get and ListActive never return soft-deleted rows.
type CredentialRepository interface {
	// Get returns the active credential, or nil if there is none.
	Get(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error)

	// GetAny returns the credential row including a soft-deleted one, or nil.
	GetAny(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error)

	// Create inserts a new credential row.
	Create(ctx context.Context, c *model.Credential) error

	// UpdateSecret replaces the login data of an active credential.
	UpdateSecret(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error

	// Reactivate clears deleted_at and replaces the login data of a disconnected credential.
	Reactivate(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error

	// SoftDelete marks an active credential as disconnected.
	SoftDelete(ctx context.Context, userID string, provider model.Provider, at time.Time) error

	// TouchLastSync records the completion time of a sync.
	TouchLastSync(ctx context.Context, userID string, provider model.Provider, at time.Time) error

	// ListActive returns every active credential of a provider.
	ListActive(ctx context.Context, provider model.Provider) ([]model.Credential, error)
}

// ListingRepository defines listing data access methods. Listings are never deleted.
type ListingRepository interface {
	// Find returns a stored listing, or nil if it was never seen.
	Find(ctx context.Context, userID string, provider model.Provider, listingID string) (*model.Listing, error)

	// Insert stores a first-seen listing. It reports false when the key already exists.
	Insert(ctx context.Context, l *model.Listing) (bool, error)

	// InsertWithJobs stores a first-seen listing and its fan-out jobs in one transaction.
	// Jobs are written only when the listing row was actually inserted.
	InsertWithJobs(ctx context.Context, l *model.Listing, images []model.ImageProcessingJob, posts []model.SocialPostJob) (bool, error)

	// TouchLastSeen records a repeat sighting.
	TouchLastSeen(ctx context.Context, userID string, provider model.Provider, listingID string, at time.Time) error

	// MergeDetails fills empty detail keys from partial. Non-empty stored values are kept.
	MergeDetails(ctx context.Context, userID string, provider model.Provider, listingID string, partial model.Details) error

	// List returns stored listings newest first, plus the total count.
	List(ctx context.Context, userID string, provider model.Provider, limit, offset int) ([]model.Listing, int64, error)

	// Stats returns listing totals for one user and provider.
	Stats(ctx context.Context, userID string, provider model.Provider) (*model.ListingStats, error)
}

// JobQueue defines the fan-out job queues.
type JobQueue interface {
	EnqueueImageJobs(ctx context.Context, jobs []model.ImageProcessingJob) error
	EnqueueSocialJobs(ctx context.Context, jobs []model.SocialPostJob) error

	// CountJobs counts jobs in the given status across both queues.
	CountJobs(ctx context.Context, status model.JobStatus) (*model.JobCounts, error)

	// PurgeFinishedJobs deletes succeeded and failed jobs last updated before the cutoff.
	PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error)
}

// PersistenceError wraps a failed repository read or write.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
