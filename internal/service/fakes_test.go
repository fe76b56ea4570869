package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dealerhub-api/internal/cache"
	"dealerhub-api/internal/crypto"
	"dealerhub-api/internal/inventory"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
)

var (
	testNow       = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	testPlatforms = []string{"facebook", "instagram"}
	errUpstream   = errors.New("upstream unavailable")
)

// fakeSource serves fixed pages and details and counts calls.
type fakeSource struct {
	mu sync.Mutex

	pages      [][]inventory.Item
	endless    int // when > 0, every page is full with this many items
	details    map[string]inventory.Item
	failDetail map[string]bool
	failPage   int

	listCalls   int
	detailCalls int

	started chan struct{} // closed on the first ListPage call
	release chan struct{} // ListPage blocks until closed, when set
	once    sync.Once
}

func (f *fakeSource) ListPage(ctx context.Context, creds inventory.Credentials, page, size int, field inventory.SortField, order inventory.SortOrder) ([]inventory.Item, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if creds.Username != "dealer" || creds.Password != "s3cret" {
		return nil, fmt.Errorf("bad credentials %q/%q", creds.Username, creds.Password)
	}
	if field != inventory.SortByModified || order != inventory.SortDescending {
		return nil, fmt.Errorf("unexpected sort %s %s", field, order)
	}
	if page == f.failPage {
		return nil, errUpstream
	}
	if f.endless > 0 {
		return summaries(fmt.Sprintf("p%d-", page), f.endless), nil
	}
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeSource) FetchDetail(ctx context.Context, creds inventory.Credentials, listingID string) (inventory.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++

	if f.failDetail[listingID] {
		return nil, &inventory.UpstreamRequestError{StatusCode: 503, Body: "try later"}
	}
	return f.details[listingID], nil
}

func (f *fakeSource) calls() (list, detail int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.detailCalls
}

// summaries returns n search items with ids prefix0..prefix(n-1).
func summaries(prefix string, n int) []inventory.Item {
	items := make([]inventory.Item, n)
	for i := range items {
		id := fmt.Sprintf("%s%d", prefix, i)
		items[i] = inventory.Item{
			"mobileAdId": id,
			"make":       "Volkswagen",
			"model":      "Golf",
			"images":     []interface{}{"https://img.example/" + id + "/a.jpg"},
		}
	}
	return items
}

func imageList(id string, n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://img.example/%s/%d.jpg", id, i)
	}
	return out
}

// testEnv wires a SyncService to SQLite in memory and a fake source.
type testEnv struct {
	t        *testing.T
	creds    *repository.SQLiteCredentialRepository
	listings *repository.SQLiteListingRepository
	cipher   *crypto.AESCipher
	src      *fakeSource
	sync     *SyncService
	now      time.Time
}

func newTestEnv(t *testing.T, src *fakeSource) *testEnv {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	creds, err := repository.NewSQLiteCredentialRepository(db)
	if err != nil {
		t.Fatalf("NewSQLiteCredentialRepository() error: %v", err)
	}
	listings, err := repository.NewSQLiteListingRepository(db)
	if err != nil {
		t.Fatalf("NewSQLiteListingRepository() error: %v", err)
	}
	cipher, err := crypto.NewAESCipher("test-secret-key")
	if err != nil {
		t.Fatalf("NewAESCipher() error: %v", err)
	}

	env := &testEnv{t: t, creds: creds, listings: listings, cipher: cipher, src: src, now: testNow}
	fanout := NewFanoutBuilder(testPlatforms, map[model.Provider]string{
		model.ProviderMobileDe: "https://suchen.mobile.de/fahrzeuge/details.html?id=%s",
	})
	env.sync = NewSyncService(creds, listings, cipher,
		inventory.Registry{model.ProviderMobileDe: src}, fanout, DefaultSyncConfig())
	env.sync.now = func() time.Time { return env.now }
	return env
}

// connect stores an active credential for user.
func (e *testEnv) connect(user string) {
	e.t.Helper()
	ciphertext, iv, err := e.cipher.Encrypt("s3cret")
	if err != nil {
		e.t.Fatalf("Encrypt() error: %v", err)
	}
	err = e.creds.Create(context.Background(), &model.Credential{
		UserID: user, Provider: model.ProviderMobileDe, Username: "dealer",
		EncryptedSecret: ciphertext, SecretIV: iv,
	})
	if err != nil {
		e.t.Fatalf("Create() error: %v", err)
	}
}

func (e *testEnv) jobCounts() model.JobCounts {
	e.t.Helper()
	counts, err := e.listings.CountJobs(context.Background(), model.JobQueued)
	if err != nil {
		e.t.Fatalf("CountJobs() error: %v", err)
	}
	return *counts
}

func (e *testEnv) stats(user string) model.ListingStats {
	e.t.Helper()
	stats, err := e.listings.Stats(context.Background(), user, model.ProviderMobileDe)
	if err != nil {
		e.t.Fatalf("Stats() error: %v", err)
	}
	return *stats
}

func (e *testEnv) lastSync(user string) *time.Time {
	e.t.Helper()
	c, err := e.creds.Get(context.Background(), user, model.ProviderMobileDe)
	if err != nil || c == nil {
		e.t.Fatalf("Get() = (%v, %v)", c, err)
	}
	return c.LastSyncAt
}

func (e *testEnv) newTrigger(minInterval time.Duration) (*BackgroundTrigger, *cache.MemoryGuard) {
	guard := cache.NewMemoryGuard(time.Minute)
	e.t.Cleanup(func() { guard.Close() })
	trigger := NewBackgroundTrigger(e.sync, e.creds, guard, TriggerConfig{MinInterval: minInterval, Timeout: 10 * time.Second})
	trigger.now = func() time.Time { return e.now }
	return trigger, guard
}

// failingListings fails Find or InsertWithJobs for chosen listing ids and
// passes everything else to the wrapped repository.
type failingListings struct {
	repository.ListingRepository
	failFind   map[string]bool
	failInsert map[string]bool
}

var errStoreWrite = errors.New("listing store unavailable")

func (f *failingListings) Find(ctx context.Context, userID string, provider model.Provider, listingID string) (*model.Listing, error) {
	if f.failFind[listingID] {
		return nil, errStoreWrite
	}
	return f.ListingRepository.Find(ctx, userID, provider, listingID)
}

func (f *failingListings) InsertWithJobs(ctx context.Context, l *model.Listing, images []model.ImageProcessingJob, posts []model.SocialPostJob) (bool, error) {
	if f.failInsert[l.ListingID] {
		return false, errStoreWrite
	}
	return f.ListingRepository.InsertWithJobs(ctx, l, images, posts)
}
