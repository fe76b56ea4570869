package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealerhub-api/internal/model"
)

// SQLiteListingRepository implements ListingRepository and JobQueue using SQLite.
type SQLiteListingRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteListingRepository creates the listing and job tables on db if needed.
func NewSQLiteListingRepository(db *sql.DB) (*SQLiteListingRepository, error) {
	if err := createListingTables(db); err != nil {
		return nil, fmt.Errorf("failed to create listing tables: %w", err)
	}
	return &SQLiteListingRepository{db: db}, nil
}

func createListingTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS inventory_listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		primary_image_url TEXT,
		images TEXT NOT NULL DEFAULT '[]',
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		UNIQUE (user_id, provider, listing_id)
	);
	CREATE INDEX IF NOT EXISTS idx_listings_first_seen ON inventory_listings(user_id, provider, first_seen);

	CREATE TABLE IF NOT EXISTS image_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		image_url TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		options TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_image_jobs_status ON image_jobs(status);

	CREATE TABLE IF NOT EXISTS social_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_social_jobs_status ON social_jobs(status);
	`
	_, err := db.Exec(query)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const listingColumns = `user_id, provider, listing_id, details, primary_image_url, images, first_seen, last_seen`

// Find returns a stored listing, or nil if it was never seen.
func (r *SQLiteListingRepository) Find(ctx context.Context, userID string, provider model.Provider, listingID string) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM inventory_listings WHERE user_id = ? AND provider = ? AND listing_id = ?`,
		userID, string(provider), listingID)

	l, err := scanSQLiteListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find listing", err)
	}
	return l, nil
}

// Insert stores a first-seen listing. It reports false when the key already exists.
func (r *SQLiteListingRepository) Insert(ctx context.Context, l *model.Listing) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted, err := insertSQLiteListing(ctx, r.db, l)
	return inserted, persistErr("insert listing", err)
}

// InsertWithJobs stores a first-seen listing and its fan-out jobs in one transaction.
func (r *SQLiteListingRepository) InsertWithJobs(ctx context.Context, l *model.Listing, images []model.ImageProcessingJob, posts []model.SocialPostJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	inserted, err := insertSQLiteListing(ctx, tx, l)
	if err != nil {
		return false, persistErr("insert listing", err)
	}
	if !inserted {
		return false, nil
	}
	if err := insertSQLiteImageJobs(ctx, tx, images); err != nil {
		return false, persistErr("enqueue image jobs", err)
	}
	if err := insertSQLiteSocialJobs(ctx, tx, posts); err != nil {
		return false, persistErr("enqueue social jobs", err)
	}

	if err := tx.Commit(); err != nil {
		return false, persistErr("commit transaction", err)
	}
	return true, nil
}

func insertSQLiteListing(ctx context.Context, ex execer, l *model.Listing) (bool, error) {
	details, err := encodeDetails(l.Details)
	if err != nil {
		return false, err
	}
	images, err := encodeImages(l.Images)
	if err != nil {
		return false, err
	}

	res, err := ex.ExecContext(ctx, `
		INSERT INTO inventory_listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, listing_id) DO NOTHING`,
		l.UserID, string(l.Provider), l.ListingID, string(details), l.PrimaryImageURL, string(images),
		formatTime(l.FirstSeen), formatTime(l.LastSeen))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchLastSeen records a repeat sighting.
func (r *SQLiteListingRepository) TouchLastSeen(ctx context.Context, userID string, provider model.Provider, listingID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`UPDATE inventory_listings SET last_seen = ? WHERE user_id = ? AND provider = ? AND listing_id = ?`,
		formatTime(at), userID, string(provider), listingID)
	return persistErr("touch last_seen", err)
}

// MergeDetails fills empty detail keys from partial.
func (r *SQLiteListingRepository) MergeDetails(ctx context.Context, userID string, provider model.Provider, listingID string, partial model.Details) error {
	if len(partial) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT details FROM inventory_listings WHERE user_id = ? AND provider = ? AND listing_id = ?`,
		userID, string(provider), listingID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return persistErr("read details", err)
	}

	existing, err := decodeDetails([]byte(raw))
	if err != nil {
		return persistErr("read details", err)
	}
	merged, changed := fillMissing(existing, partial)
	if !changed {
		return nil
	}
	encoded, err := encodeDetails(merged)
	if err != nil {
		return persistErr("merge details", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE inventory_listings SET details = ? WHERE user_id = ? AND provider = ? AND listing_id = ?`,
		string(encoded), userID, string(provider), listingID); err != nil {
		return persistErr("merge details", err)
	}
	return persistErr("commit transaction", tx.Commit())
}

// List returns stored listings newest first, plus the total count.
func (r *SQLiteListingRepository) List(ctx context.Context, userID string, provider model.Provider, limit, offset int) ([]model.Listing, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_listings WHERE user_id = ? AND provider = ?`,
		userID, string(provider)).Scan(&total); err != nil {
		return nil, 0, persistErr("count listings", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM inventory_listings
		 WHERE user_id = ? AND provider = ?
		 ORDER BY first_seen DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, string(provider), limit, offset)
	if err != nil {
		return nil, 0, persistErr("list listings", err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, 0, persistErr("scan listing", err)
		}
		listings = append(listings, *l)
	}
	return listings, total, persistErr("list listings", rows.Err())
}

// Stats returns listing totals for one user and provider.
func (r *SQLiteListingRepository) Stats(ctx context.Context, userID string, provider model.Provider) (*model.ListingStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	var latest sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(first_seen) FROM inventory_listings WHERE user_id = ? AND provider = ?`,
		userID, string(provider)).Scan(&total, &latest)
	if err != nil {
		return nil, persistErr("listing stats", err)
	}

	latestAt, err := parseNullTime(latest)
	if err != nil {
		return nil, persistErr("listing stats", err)
	}
	return &model.ListingStats{TotalListings: total, LatestFirstSeen: latestAt}, nil
}

// EnqueueImageJobs appends image jobs outside of a listing insert.
func (r *SQLiteListingRepository) EnqueueImageJobs(ctx context.Context, jobs []model.ImageProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return persistErr("enqueue image jobs", insertSQLiteImageJobs(ctx, r.db, jobs))
}

// EnqueueSocialJobs appends social jobs outside of a listing insert.
func (r *SQLiteListingRepository) EnqueueSocialJobs(ctx context.Context, jobs []model.SocialPostJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return persistErr("enqueue social jobs", insertSQLiteSocialJobs(ctx, r.db, jobs))
}

// CountJobs counts jobs in the given status across both queues.
func (r *SQLiteListingRepository) CountJobs(ctx context.Context, status model.JobStatus) (*model.JobCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := &model.JobCounts{}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_jobs WHERE status = ?`, string(status)).Scan(&counts.ImageJobs); err != nil {
		return nil, persistErr("count image jobs", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM social_jobs WHERE status = ?`, string(status)).Scan(&counts.SocialJobs); err != nil {
		return nil, persistErr("count social jobs", err)
	}
	return counts, nil
}

// PurgeFinishedJobs deletes succeeded and failed jobs last updated before the cutoff.
func (r *SQLiteListingRepository) PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := formatTime(before)
	var total int64
	for _, table := range []string{"image_jobs", "social_jobs"} {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE status IN (?, ?) AND updated_at < ?`,
			string(model.JobSuccess), string(model.JobFailed), cutoff)
		if err != nil {
			return total, persistErr("purge "+table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func insertSQLiteImageJobs(ctx context.Context, ex execer, jobs []model.ImageProcessingJob) error {
	for _, j := range jobs {
		opts, err := json.Marshal(j.Options)
		if err != nil {
			return err
		}
		ts := formatTime(j.CreatedAt)
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO image_jobs (id, user_id, provider, listing_id, image_url, position, options, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.UserID, string(j.Provider), j.ListingID, j.ImageURL, j.Position, string(opts), string(j.Status), ts, ts); err != nil {
			return fmt.Errorf("image job %s: %w", j.ID, err)
		}
	}
	return nil
}

func insertSQLiteSocialJobs(ctx context.Context, ex execer, jobs []model.SocialPostJob) error {
	for _, j := range jobs {
		payload, err := json.Marshal(j.Payload)
		if err != nil {
			return err
		}
		ts := formatTime(j.CreatedAt)
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO social_jobs (id, user_id, provider, listing_id, platform, payload, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.UserID, string(j.Provider), j.ListingID, j.Platform, string(payload), string(j.Status), ts, ts); err != nil {
			return fmt.Errorf("social job %s: %w", j.ID, err)
		}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteListing(row rowScanner) (*model.Listing, error) {
	var (
		l                   model.Listing
		provider            string
		details, images     string
		primary             sql.NullString
		firstSeen, lastSeen string
	)
	if err := row.Scan(&l.UserID, &provider, &l.ListingID, &details, &primary, &images, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	l.Provider = model.Provider(provider)
	if primary.Valid {
		l.PrimaryImageURL = &primary.String
	}

	var err error
	if l.Details, err = decodeDetails([]byte(details)); err != nil {
		return nil, err
	}
	if l.Images, err = decodeImages([]byte(images)); err != nil {
		return nil, err
	}
	if l.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if l.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	return &l, nil
}

// Ensure SQLiteListingRepository implements ListingRepository and JobQueue
var (
	_ ListingRepository = (*SQLiteListingRepository)(nil)
	_ JobQueue          = (*SQLiteListingRepository)(nil)
)

var (
	_ ListingRepository = (*SQLiteListingRepository)(nil)
	_ JobQueue          = (*SQLiteListingRepository)(nil)
)
