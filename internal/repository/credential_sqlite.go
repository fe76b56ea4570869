package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealerhub-api/internal/model"
)

// SQLiteCredentialRepository implements CredentialRepository using SQLite.
type SQLiteCredentialRepository struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteCredentialRepository creates the credential table on db if needed.
func NewSQLiteCredentialRepository(db *sql.DB) (*SQLiteCredentialRepository, error) {
	query := `
	CREATE TABLE IF NOT EXISTS inventory_credentials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		username TEXT NOT NULL,
		encrypted_secret TEXT NOT NULL,
		secret_iv TEXT NOT NULL,
		last_sync_at TEXT,
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, provider)
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_provider ON inventory_credentials(provider, deleted_at);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create credential table: %w", err)
	}
	return &SQLiteCredentialRepository{db: db, now: time.Now}, nil
}

const credentialColumns = `id, user_id, provider, username, encrypted_secret, secret_iv, last_sync_at, deleted_at, created_at, updated_at`

// Get returns the active credential, or nil if there is none.
func (r *SQLiteCredentialRepository) Get(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error) {
	return r.get(ctx, userID, provider, true)
}

// GetAny returns the credential row including a soft-deleted one, or nil.
func (r *SQLiteCredentialRepository) GetAny(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error) {
	return r.get(ctx, userID, provider, false)
}

func (r *SQLiteCredentialRepository) get(ctx context.Context, userID string, provider model.Provider, activeOnly bool) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + credentialColumns + ` FROM inventory_credentials WHERE user_id = ? AND provider = ?`
	if activeOnly {
		query += ` AND deleted_at IS NULL`
	}

	c, err := scanSQLiteCredential(r.db.QueryRowContext(ctx, query, userID, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get credential", err)
	}
	return c, nil
}

// Create inserts a new credential row.
func (r *SQLiteCredentialRepository) Create(ctx context.Context, c *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_credentials (user_id, provider, username, encrypted_secret, secret_iv, last_sync_at, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		c.UserID, string(c.Provider), c.Username, c.EncryptedSecret, c.SecretIV,
		formatNullTime(c.LastSyncAt), formatTime(now), formatTime(now))
	if err != nil {
		return persistErr("create credential", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = id
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

// UpdateSecret replaces the login data of an active credential.
func (r *SQLiteCredentialRepository) UpdateSecret(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error {
	return r.exec(ctx, "update credential", `
		UPDATE inventory_credentials
		SET username = ?, encrypted_secret = ?, secret_iv = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		username, encryptedSecret, iv, formatTime(r.now()), userID, string(provider))
}

// Reactivate clears deleted_at and replaces the login data of a disconnected credential.
func (r *SQLiteCredentialRepository) Reactivate(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error {
	return r.exec(ctx, "reactivate credential", `
		UPDATE inventory_credentials
		SET username = ?, encrypted_secret = ?, secret_iv = ?, deleted_at = NULL, last_sync_at = NULL, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NOT NULL`,
		username, encryptedSecret, iv, formatTime(r.now()), userID, string(provider))
}

// SoftDelete marks an active credential as disconnected.
func (r *SQLiteCredentialRepository) SoftDelete(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	return r.exec(ctx, "delete credential", `
		UPDATE inventory_credentials SET deleted_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(at), userID, string(provider))
}

// TouchLastSync records the completion time of a sync.
func (r *SQLiteCredentialRepository) TouchLastSync(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	return r.exec(ctx, "touch last_sync_at", `
		UPDATE inventory_credentials SET last_sync_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(at), userID, string(provider))
}

// ListActive returns every active credential of a provider.
func (r *SQLiteCredentialRepository) ListActive(ctx context.Context, provider model.Provider) ([]model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM inventory_credentials
		 WHERE provider = ? AND deleted_at IS NULL
		 ORDER BY id`, string(provider))
	if err != nil {
		return nil, persistErr("list credentials", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		c, err := scanSQLiteCredential(rows)
		if err != nil {
			return nil, persistErr("scan credential", err)
		}
		creds = append(creds, *c)
	}
	return creds, persistErr("list credentials", rows.Err())
}

func (r *SQLiteCredentialRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, query, args...)
	return persistErr(op, err)
}

func scanSQLiteCredential(row rowScanner) (*model.Credential, error) {
	var (
		c                    model.Credential
		provider             string
		lastSync, deletedAt  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.UserID, &provider, &c.Username, &c.EncryptedSecret, &c.SecretIV,
		&lastSync, &deletedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Provider = model.Provider(provider)

	var err error
	if c.LastSyncAt, err = parseNullTime(lastSync); err != nil {
		return nil, err
	}
	if c.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Ensure SQLiteCredentialRepository implements CredentialRepository
var _ CredentialRepository = (*SQLiteCredentialRepository)(nil)
