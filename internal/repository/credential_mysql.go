package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"dealerhub-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLCredentialRepository implements CredentialRepository using MySQL.
type MySQLCredentialRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenMySQL opens a pooled MySQL connection. dsn must set parseTime=true.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// NewMySQLCredentialRepository creates a new MySQL credential repository.
func NewMySQLCredentialRepository(db *sql.DB) *MySQLCredentialRepository {
	return &MySQLCredentialRepository{db: db, now: time.Now}
}

// Migrate creates the credential table if it does not exist.
func (r *MySQLCredentialRepository) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS inventory_credentials (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		provider VARCHAR(32) NOT NULL,
		username VARCHAR(255) NOT NULL,
		encrypted_secret TEXT NOT NULL,
		secret_iv VARCHAR(64) NOT NULL,
		last_sync_at DATETIME(6) NULL,
		deleted_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_credentials_user_provider (user_id, provider),
		KEY idx_credentials_provider (provider, deleted_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create credential table: %w", err)
	}
	log.Println("[MySQLCredentialRepository] Schema ready")
	return nil
}

// Get returns the active credential, or nil if there is none.
func (r *MySQLCredentialRepository) Get(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM inventory_credentials
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL LIMIT 1`
	return r.queryOne(ctx, query, userID, provider)
}

// GetAny returns the credential row including a soft-deleted one, or nil.
func (r *MySQLCredentialRepository) GetAny(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM inventory_credentials
		WHERE user_id = ? AND provider = ? LIMIT 1`
	return r.queryOne(ctx, query, userID, provider)
}

func (r *MySQLCredentialRepository) queryOne(ctx context.Context, query, userID string, provider model.Provider) (*model.Credential, error) {
	c, err := scanMySQLCredential(r.db.QueryRowContext(ctx, query, userID, string(provider)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistErr("get credential", err)
	}
	return c, nil
}

// Create inserts a new credential row.
func (r *MySQLCredentialRepository) Create(ctx context.Context, c *model.Credential) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_credentials (user_id, provider, username, encrypted_secret, secret_iv, last_sync_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, string(c.Provider), c.Username, c.EncryptedSecret, c.SecretIV, c.LastSyncAt, now, now)
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
func (r *MySQLCredentialRepository) UpdateSecret(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_credentials
		SET username = ?, encrypted_secret = ?, secret_iv = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		username, encryptedSecret, iv, r.now().UTC(), userID, string(provider))
	return persistErr("update credential", err)
}

// Reactivate clears deleted_at and replaces the login data of a disconnected credential.
func (r *MySQLCredentialRepository) Reactivate(ctx context.Context, userID string, provider model.Provider, username, encryptedSecret, iv string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_credentials
		SET username = ?, encrypted_secret = ?, secret_iv = ?, deleted_at = NULL, last_sync_at = NULL, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NOT NULL`,
		username, encryptedSecret, iv, r.now().UTC(), userID, string(provider))
	return persistErr("reactivate credential", err)
}

// SoftDelete marks an active credential as disconnected.
func (r *MySQLCredentialRepository) SoftDelete(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_credentials SET deleted_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), userID, string(provider))
	return persistErr("delete credential", err)
}

// TouchLastSync records the completion time of a sync.
func (r *MySQLCredentialRepository) TouchLastSync(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_credentials SET last_sync_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), userID, string(provider))
	return persistErr("touch last_sync_at", err)
}

// ListActive returns every active credential of a provider.
func (r *MySQLCredentialRepository) ListActive(ctx context.Context, provider model.Provider) ([]model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM inventory_credentials
		WHERE provider = ? AND deleted_at IS NULL ORDER BY id`, string(provider))
	if err != nil {
		return nil, persistErr("list credentials", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		c, err := scanMySQLCredential(rows)
		if err != nil {
			return nil, persistErr("scan credential", err)
		}
		creds = append(creds, *c)
	}
	return creds, persistErr("list credentials", rows.Err())
}

func scanMySQLCredential(row rowScanner) (*model.Credential, error) {
	var (
		c                   model.Credential
		provider            string
		lastSync, deletedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.UserID, &provider, &c.Username, &c.EncryptedSecret, &c.SecretIV,
		&lastSync, &deletedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Provider = model.Provider(provider)
	if lastSync.Valid {
		t := lastSync.Time
		c.LastSyncAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

// Ensure MySQLCredentialRepository implements CredentialRepository
var _ CredentialRepository = (*MySQLCredentialRepository)(nil)
