// Package sqlite persists the file index, the quota ledger, and the
// credential store in a single embedded database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dongurihub/filedrop/internal/auth"
	"github.com/dongurihub/filedrop/internal/files"
	_ "modernc.org/sqlite"
)

// Repository implements files.FileRepository, files.QuotaLedger, and
// auth.CredentialStore using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at dbPath and prepares the
// schema.
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent registrations queued instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		token TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		uploaded_at DATETIME NOT NULL,
		source_id TEXT NOT NULL,
		storage_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_files_source_id ON files(source_id);

	CREATE TABLE IF NOT EXISTS quota_ledger (
		source_id TEXT PRIMARY KEY,
		cumulative_bytes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Create stores a file record. SQLite commits before Exec returns, so the
// record is durable once Create succeeds.
func (r *Repository) Create(ctx context.Context, file *files.File) error {
	query := `
	INSERT INTO files (token, filename, size, mime_type, uploaded_at, source_id, storage_name)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.Token,
		file.Filename,
		file.Size,
		file.MimeType,
		file.UploadedAt,
		file.SourceID,
		file.StorageName,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// FindByToken retrieves a file record by token.
func (r *Repository) FindByToken(ctx context.Context, token string) (*files.File, error) {
	query := `
	SELECT token, filename, size, mime_type, uploaded_at, source_id, storage_name
	FROM files
	WHERE token = ?
	`

	var file files.File
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&file.Token,
		&file.Filename,
		&file.Size,
		&file.MimeType,
		&file.UploadedAt,
		&file.SourceID,
		&file.StorageName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	return &file, nil
}

// ListAll retrieves all file records, most recent first.
func (r *Repository) ListAll(ctx context.Context) ([]*files.File, error) {
	query := `
	SELECT token, filename, size, mime_type, uploaded_at, source_id, storage_name
	FROM files
	ORDER BY uploaded_at DESC
	`
	return r.queryFiles(ctx, query)
}

// ListBySource retrieves the records uploaded by one source, most recent
// first.
func (r *Repository) ListBySource(ctx context.Context, sourceID string) ([]*files.File, error) {
	query := `
	SELECT token, filename, size, mime_type, uploaded_at, source_id, storage_name
	FROM files
	WHERE source_id = ?
	ORDER BY uploaded_at DESC
	`
	return r.queryFiles(ctx, query, sourceID)
}

func (r *Repository) queryFiles(ctx context.Context, query string, args ...any) ([]*files.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var fileList []*files.File
	for rows.Next() {
		var file files.File
		err := rows.Scan(
			&file.Token,
			&file.Filename,
			&file.Size,
			&file.MimeType,
			&file.UploadedAt,
			&file.SourceID,
			&file.StorageName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		fileList = append(fileList, &file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return fileList, nil
}

// Delete removes a file record by token.
func (r *Repository) Delete(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return files.ErrNotFound
	}

	return nil
}

// Usage returns the cumulative uploaded bytes recorded for a source, zero if
// the source has never uploaded.
func (r *Repository) Usage(ctx context.Context, sourceID string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cumulative_bytes FROM quota_ledger WHERE source_id = ?`, sourceID,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read quota ledger: %w", err)
	}
	return total, nil
}

// Add increments a source's running total. The upsert executes as a single
// statement, so concurrent uploads cannot lose increments.
func (r *Repository) Add(ctx context.Context, sourceID string, n int64) error {
	query := `
	INSERT INTO quota_ledger (source_id, cumulative_bytes)
	VALUES (?, ?)
	ON CONFLICT(source_id) DO UPDATE SET
		cumulative_bytes = cumulative_bytes + excluded.cumulative_bytes
	`
	if _, err := r.db.ExecContext(ctx, query, sourceID, n); err != nil {
		return fmt.Errorf("failed to update quota ledger: %w", err)
	}
	return nil
}

// Upsert stores a credential entry, replacing the password hash when the
// username already exists.
func (r *Repository) Upsert(ctx context.Context, username, passwordHash string) error {
	query := `
	INSERT INTO users (username, password_hash, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash
	`
	if _, err := r.db.ExecContext(ctx, query, username, passwordHash, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// PasswordHash returns the stored hash for a username.
func (r *Repository) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", auth.ErrUnknownUser
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	return hash, nil
}

// CountUsers reports how many credential entries exist.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
