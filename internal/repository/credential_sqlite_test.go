package repository

import (
	"context"
	"testing"
	"time"

	"dealerhub-api/internal/model"
)

func newTestCredentialRepo(t *testing.T) *SQLiteCredentialRepository {
	t.Helper()
	repo, err := NewSQLiteCredentialRepository(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteCredentialRepository() error: %v", err)
	}
	repo.now = func() time.Time { return baseTime }
	return repo
}

func testCredential(userID string, p model.Provider) *model.Credential {
	return &model.Credential{
		UserID:          userID,
		Provider:        p,
		Username:        "dealer-" + userID,
		EncryptedSecret: "cafe",
		SecretIV:        "beef",
	}
}

func TestCredentialRepository_CreateAndGet(t *testing.T) {
	repo := newTestCredentialRepo(t)
	ctx := context.Background()

	if got, err := repo.Get(ctx, "u1", model.ProviderMobileDe); err != nil || got != nil {
		t.Fatalf("Get() before create = (%v, %v), want (nil, nil)", got, err)
	}

	c := testCredential("u1", model.ProviderMobileDe)
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.ID == 0 {
		t.Error("Create() did not set ID")
	}

	got, err := repo.Get(ctx, "u1", model.ProviderMobileDe)
	if err != nil || got == nil {
		t.Fatalf("Get() = (%v, %v)", got, err)
	}
	if got.Username != "dealer-u1" || got.EncryptedSecret != "cafe" || got.SecretIV != "beef" {
		t.Errorf("credential = %+v", got)
	}
	if got.LastSyncAt != nil || got.DeletedAt != nil {
		t.Errorf("fresh credential has timestamps: %+v", got)
	}
	if got.State() != model.CredentialActive {
		t.Errorf("State() = %s, want active", got.State())
	}

	// One row per (user, provider).
	if err := repo.Create(ctx, testCredential("u1", model.ProviderMobileDe)); err == nil {
		t.Error("duplicate Create() expected error, got nil")
	}
}

func TestCredentialRepository_SoftDeleteAndReactivate(t *testing.T) {
	repo := newTestCredentialRepo(t)
	ctx := context.Background()
	repo.Create(ctx, testCredential("u1", model.ProviderMobileDe))
	repo.TouchLastSync(ctx, "u1", model.ProviderMobileDe, baseTime)

	if err := repo.SoftDelete(ctx, "u1", model.ProviderMobileDe, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("SoftDelete() error: %v", err)
	}
	if got, _ := repo.Get(ctx, "u1", model.ProviderMobileDe); got != nil {
		t.Errorf("Get() after delete = %+v, want nil", got)
	}
	row, err := repo.GetAny(ctx, "u1", model.ProviderMobileDe)
	if err != nil || row == nil {
		t.Fatalf("GetAny() = (%v, %v)", row, err)
	}
	if row.State() != model.CredentialDisconnected {
		t.Errorf("State() = %s, want disconnected", row.State())
	}

	// Writes to the active row are no-ops while disconnected.
	repo.TouchLastSync(ctx, "u1", model.ProviderMobileDe, baseTime.Add(time.Hour))
	repo.UpdateSecret(ctx, "u1", model.ProviderMobileDe, "other", "x", "y")
	row, _ = repo.GetAny(ctx, "u1", model.ProviderMobileDe)
	if row.Username != "dealer-u1" || !row.LastSyncAt.Equal(baseTime) {
		t.Errorf("disconnected row changed: %+v", row)
	}

	if err := repo.Reactivate(ctx, "u1", model.ProviderMobileDe, "new-user", "new-secret", "new-iv"); err != nil {
		t.Fatalf("Reactivate() error: %v", err)
	}
	got, _ := repo.Get(ctx, "u1", model.ProviderMobileDe)
	if got == nil {
		t.Fatal("Get() after reactivate = nil")
	}
	if got.Username != "new-user" || got.EncryptedSecret != "new-secret" || got.SecretIV != "new-iv" {
		t.Errorf("reactivated credential = %+v", got)
	}
	if got.LastSyncAt != nil {
		t.Errorf("LastSyncAt = %v, want nil so the account is synced again", got.LastSyncAt)
	}
}

func TestCredentialRepository_UpdateSecretAndTouch(t *testing.T) {
	repo := newTestCredentialRepo(t)
	ctx := context.Background()
	repo.Create(ctx, testCredential("u1", model.ProviderAutoScout24))

	if err := repo.UpdateSecret(ctx, "u1", model.ProviderAutoScout24, "renamed", "s2", "iv2"); err != nil {
		t.Fatalf("UpdateSecret() error: %v", err)
	}
	at := baseTime.Add(5 * time.Minute)
	if err := repo.TouchLastSync(ctx, "u1", model.ProviderAutoScout24, at); err != nil {
		t.Fatalf("TouchLastSync() error: %v", err)
	}

	got, _ := repo.Get(ctx, "u1", model.ProviderAutoScout24)
	if got.Username != "renamed" || got.EncryptedSecret != "s2" {
		t.Errorf("credential = %+v", got)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(at) {
		t.Errorf("LastSyncAt = %v, want %v", got.LastSyncAt, at)
	}
}

func TestCredentialRepository_ListActive(t *testing.T) {
	repo := newTestCredentialRepo(t)
	ctx := context.Background()
	repo.Create(ctx, testCredential("u1", model.ProviderMobileDe))
	repo.Create(ctx, testCredential("u2", model.ProviderMobileDe))
	repo.Create(ctx, testCredential("u3", model.ProviderMobileDe))
	repo.Create(ctx, testCredential("u1", model.ProviderAutoScout24))
	repo.SoftDelete(ctx, "u2", model.ProviderMobileDe, baseTime)

	creds, err := repo.ListActive(ctx, model.ProviderMobileDe)
	if err != nil {
		t.Fatalf("ListActive() error: %v", err)
	}
	if len(creds) != 2 || creds[0].UserID != "u1" || creds[1].UserID != "u3" {
		t.Errorf("ListActive() = %+v, want u1 and u3", creds)
	}
}
