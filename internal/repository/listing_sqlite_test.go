package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dealerhub-api/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestListingRepo(t *testing.T) *SQLiteListingRepository {
	t.Helper()
	repo, err := NewSQLiteListingRepository(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteListingRepository() error: %v", err)
	}
	return repo
}

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)

func testListing(id string, seen time.Time) *model.Listing {
	primary := "https://img.example/" + id + "/1.jpg"
	return &model.Listing{
		UserID:          "user-1",
		Provider:        model.ProviderMobileDe,
		ListingID:       id,
		Details:         model.Details{"make": "BMW", "model": ""},
		PrimaryImageURL: &primary,
		Images:          []string{primary, "https://img.example/" + id + "/2.jpg"},
		FirstSeen:       seen,
		LastSeen:        seen,
	}
}

func testJobs(l *model.Listing) ([]model.ImageProcessingJob, []model.SocialPostJob) {
	var images []model.ImageProcessingJob
	for i, u := range l.Images {
		images = append(images, model.ImageProcessingJob{
			ID: fmt.Sprintf("img-%s-%d", l.ListingID, i), UserID: l.UserID, Provider: l.Provider,
			ListingID: l.ListingID, ImageURL: u, Position: i,
			Options: model.ImageOptions{Background: "white", Logo: i == 0},
			Status:  model.JobQueued, CreatedAt: l.FirstSeen,
		})
	}
	var posts []model.SocialPostJob
	for _, p := range []string{"facebook", "instagram"} {
		posts = append(posts, model.SocialPostJob{
			ID: "post-" + l.ListingID + "-" + p, UserID: l.UserID, Provider: l.Provider,
			ListingID: l.ListingID, Platform: p,
			Payload: model.SocialPayload{Caption: "BMW", Images: l.Images, Link: "https://example.test"},
			Status:  model.JobQueued, CreatedAt: l.FirstSeen,
		})
	}
	return images, posts
}

func TestListingRepository_FindMissing(t *testing.T) {
	repo := newTestListingRepo(t)

	got, err := repo.Find(context.Background(), "user-1", model.ProviderMobileDe, "nope")
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got != nil {
		t.Errorf("Find() = %+v, want nil", got)
	}
}

func TestListingRepository_InsertAndFind(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	l := testListing("100", baseTime)

	inserted, err := repo.Insert(ctx, l)
	if err != nil || !inserted {
		t.Fatalf("Insert() = (%v, %v), want (true, nil)", inserted, err)
	}

	got, err := repo.Find(ctx, "user-1", model.ProviderMobileDe, "100")
	if err != nil || got == nil {
		t.Fatalf("Find() = (%v, %v)", got, err)
	}
	if !got.FirstSeen.Equal(baseTime) || !got.LastSeen.Equal(baseTime) {
		t.Errorf("seen times = %v / %v, want %v", got.FirstSeen, got.LastSeen, baseTime)
	}
	if got.Details["make"] != "BMW" {
		t.Errorf("details = %v", got.Details)
	}
	if len(got.Images) != 2 || got.PrimaryImageURL == nil || *got.PrimaryImageURL != l.Images[0] {
		t.Errorf("images = %v, primary = %v", got.Images, got.PrimaryImageURL)
	}

	// Same key is never inserted twice.
	inserted, err = repo.Insert(ctx, testListing("100", baseTime.Add(time.Hour)))
	if err != nil || inserted {
		t.Errorf("second Insert() = (%v, %v), want (false, nil)", inserted, err)
	}

	// A different provider is a different key.
	other := testListing("100", baseTime)
	other.Provider = model.ProviderAutoScout24
	if inserted, err := repo.Insert(ctx, other); err != nil || !inserted {
		t.Errorf("Insert() other provider = (%v, %v), want (true, nil)", inserted, err)
	}
}

func TestListingRepository_InsertWithJobs(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	l := testListing("200", baseTime)
	images, posts := testJobs(l)

	inserted, err := repo.InsertWithJobs(ctx, l, images, posts)
	if err != nil || !inserted {
		t.Fatalf("InsertWithJobs() = (%v, %v), want (true, nil)", inserted, err)
	}

	// Repeat fan-out for the same listing writes nothing.
	images2, posts2 := testJobs(l)
	for i := range images2 {
		images2[i].ID += "-again"
	}
	for i := range posts2 {
		posts2[i].ID += "-again"
	}
	inserted, err = repo.InsertWithJobs(ctx, l, images2, posts2)
	if err != nil || inserted {
		t.Fatalf("repeat InsertWithJobs() = (%v, %v), want (false, nil)", inserted, err)
	}

	counts, err := repo.CountJobs(ctx, model.JobQueued)
	if err != nil {
		t.Fatalf("CountJobs() error: %v", err)
	}
	if counts.ImageJobs != 2 || counts.SocialJobs != 2 {
		t.Errorf("counts = %+v, want 2 image and 2 social jobs", counts)
	}
}

func TestListingRepository_InsertWithJobsRollsBack(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	l := testListing("300", baseTime)
	images, posts := testJobs(l)
	images[1].ID = images[0].ID // duplicate primary key fails the transaction

	_, err := repo.InsertWithJobs(ctx, l, images, posts)
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}

	got, err := repo.Find(ctx, "user-1", model.ProviderMobileDe, "300")
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got != nil {
		t.Error("listing row survived a failed fan-out transaction")
	}
	counts, _ := repo.CountJobs(ctx, model.JobQueued)
	if counts.ImageJobs != 0 || counts.SocialJobs != 0 {
		t.Errorf("counts = %+v, want none", counts)
	}
}

func TestListingRepository_ConcurrentInsertWithJobs(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := testListing("400", baseTime)
			images, posts := testJobs(l)
			for j := range images {
				images[j].ID = fmt.Sprintf("%s-%d", images[j].ID, i)
			}
			for j := range posts {
				posts[j].ID = fmt.Sprintf("%s-%d", posts[j].ID, i)
			}
			ok, err := repo.InsertWithJobs(ctx, l, images, posts)
			if err != nil {
				t.Errorf("InsertWithJobs() error: %v", err)
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d inserts won, want exactly 1", winners)
	}
	counts, _ := repo.CountJobs(ctx, model.JobQueued)
	if counts.ImageJobs != 2 || counts.SocialJobs != 2 {
		t.Errorf("counts = %+v, want one fan-out", counts)
	}
}

func TestListingRepository_TouchLastSeen(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	repo.Insert(ctx, testListing("500", baseTime))

	later := baseTime.Add(90 * time.Minute)
	if err := repo.TouchLastSeen(ctx, "user-1", model.ProviderMobileDe, "500", later); err != nil {
		t.Fatalf("TouchLastSeen() error: %v", err)
	}

	got, _ := repo.Find(ctx, "user-1", model.ProviderMobileDe, "500")
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
	if !got.FirstSeen.Equal(baseTime) {
		t.Errorf("FirstSeen changed to %v", got.FirstSeen)
	}
}

func TestListingRepository_MergeDetailsFillOnly(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	repo.Insert(ctx, testListing("600", baseTime))

	err := repo.MergeDetails(ctx, "user-1", model.ProviderMobileDe, "600", model.Details{
		"make":  "Audi", // stored value is kept
		"model": "320d", // stored value is empty, filled
		"color": "blue", // absent, filled
		"fuel":  "",     // empty partial values are ignored
	})
	if err != nil {
		t.Fatalf("MergeDetails() error: %v", err)
	}

	got, _ := repo.Find(ctx, "user-1", model.ProviderMobileDe, "600")
	if got.Details["make"] != "BMW" {
		t.Errorf("make = %v, want BMW kept", got.Details["make"])
	}
	if got.Details["model"] != "320d" || got.Details["color"] != "blue" {
		t.Errorf("details = %v, want model and color filled", got.Details)
	}
	if _, ok := got.Details["fuel"]; ok {
		t.Errorf("empty partial value stored: %v", got.Details)
	}

	// Unknown listing is a no-op.
	if err := repo.MergeDetails(ctx, "user-1", model.ProviderMobileDe, "missing", model.Details{"make": "VW"}); err != nil {
		t.Errorf("MergeDetails() on missing listing error: %v", err)
	}
}

func TestListingRepository_ListAndStats(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()

	stats, err := repo.Stats(ctx, "user-1", model.ProviderMobileDe)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalListings != 0 || stats.LatestFirstSeen != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	for i := 0; i < 5; i++ {
		repo.Insert(ctx, testListing(fmt.Sprintf("L%d", i), baseTime.Add(time.Duration(i)*time.Minute)))
	}
	foreign := testListing("X", baseTime.Add(time.Hour))
	foreign.UserID = "user-2"
	repo.Insert(ctx, foreign)

	stats, err = repo.Stats(ctx, "user-1", model.ProviderMobileDe)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalListings != 5 {
		t.Errorf("TotalListings = %d, want 5", stats.TotalListings)
	}
	if want := baseTime.Add(4 * time.Minute); stats.LatestFirstSeen == nil || !stats.LatestFirstSeen.Equal(want) {
		t.Errorf("LatestFirstSeen = %v, want %v", stats.LatestFirstSeen, want)
	}

	page, total, err := repo.List(ctx, "user-1", model.ProviderMobileDe, 2, 1)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 || page[0].ListingID != "L3" || page[1].ListingID != "L2" {
		t.Errorf("page = %v, want [L3 L2]", listingIDs(page))
	}
}

func TestListingRepository_EnqueueStandalone(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	images, posts := testJobs(testListing("700", baseTime))

	if err := repo.EnqueueImageJobs(ctx, images); err != nil {
		t.Fatalf("EnqueueImageJobs() error: %v", err)
	}
	if err := repo.EnqueueSocialJobs(ctx, posts[:1]); err != nil {
		t.Fatalf("EnqueueSocialJobs() error: %v", err)
	}

	counts, err := repo.CountJobs(ctx, model.JobQueued)
	if err != nil {
		t.Fatalf("CountJobs() error: %v", err)
	}
	if counts.ImageJobs != 2 || counts.SocialJobs != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if done, _ := repo.CountJobs(ctx, model.JobSuccess); done.ImageJobs != 0 || done.SocialJobs != 0 {
		t.Errorf("success counts = %+v, want none", done)
	}
}

func TestFillMissing(t *testing.T) {
	merged, changed := fillMissing(nil, model.Details{"make": "VW", "model": nil})
	if !changed || merged["make"] != "VW" {
		t.Errorf("fillMissing(nil) = (%v, %v)", merged, changed)
	}
	if _, ok := merged["model"]; ok {
		t.Error("nil partial value was copied")
	}

	_, changed = fillMissing(model.Details{"make": "VW"}, model.Details{"make": "Seat"})
	if changed {
		t.Error("fillMissing overwrote a known value")
	}
}

func listingIDs(ls []model.Listing) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ListingID
	}
	return ids
}

func TestListingRepository_PurgeFinishedJobs(t *testing.T) {
	repo := newTestListingRepo(t)
	ctx := context.Background()
	old := baseTime.Add(-10 * 24 * time.Hour)

	images, posts := testJobs(testListing("800", old))
	images[0].Status = model.JobSuccess
	images[1].Status = model.JobFailed
	posts[0].Status = model.JobSuccess
	posts[0].CreatedAt = baseTime
	posts[1].Status = model.JobQueued
	if err := repo.EnqueueImageJobs(ctx, images); err != nil {
		t.Fatalf("EnqueueImageJobs() error: %v", err)
	}
	if err := repo.EnqueueSocialJobs(ctx, posts); err != nil {
		t.Fatalf("EnqueueSocialJobs() error: %v", err)
	}

	deleted, err := repo.PurgeFinishedJobs(ctx, baseTime.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeFinishedJobs() error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	var remaining int
	repo.db.QueryRow(`SELECT (SELECT COUNT(*) FROM image_jobs) + (SELECT COUNT(*) FROM social_jobs)`).Scan(&remaining)
	if remaining != 2 {
		t.Errorf("remaining jobs = %d, want the queued and the recent one", remaining)
	}
}
