// Package sqlite implements the metadata.Store interface on an embedded
// SQLite database. It is the default store for single-node deployments and
// the store used by the test suites.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if necessary creates) the database at dbPath.
// Use ":memory:" with a shared cache DSN for tests.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection sidesteps table-lock contention between the pool's
	// connections; busy_timeout covers the rest.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS files (
    file_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    object_ref TEXT NOT NULL,
    filename TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    download_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_owner_id ON files(owner_id);

CREATE TABLE IF NOT EXISTS permissions (
    file_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('owner', 'editor', 'viewer')),
    granted_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (file_id, principal_id)
);

CREATE INDEX IF NOT EXISTS idx_permissions_file_id ON permissions(file_id);

CREATE TABLE IF NOT EXISTS shares (
    token_id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL,
    issued_by TEXT NOT NULL,
    issued_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    max_uses INTEGER,
    use_count INTEGER NOT NULL DEFAULT 0,
    revoked INTEGER NOT NULL DEFAULT 0,
    password_hash TEXT,
    last_used_at INTEGER,
    last_used_ip TEXT,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shares_file_id ON shares(file_id);
CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as integer unix nanoseconds so that the conditional
// predicates (expires_at > ?) compare correctly inside SQL.

func toNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	var tags []string
	if raw == "" {
		return []string{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}

// translateErr maps driver-level failures to the metadata error taxonomy.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return metadata.ErrUnavailable
	case strings.Contains(err.Error(), "database is locked"),
		strings.Contains(err.Error(), "SQLITE_BUSY"):
		return metadata.ErrConflict
	default:
		return err
	}
}

func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*metadata.FileRecord, error) {
	query := `
		SELECT file_id, owner_id, object_ref, filename, content_type, size_bytes,
		       content_hash, description, tags, download_count, created_at, updated_at
		FROM files
		WHERE file_id = ?`

	var fr metadata.FileRecord
	var tagsRaw string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, fileID).Scan(
		&fr.FileID,
		&fr.OwnerID,
		&fr.ObjectRef,
		&fr.Filename,
		&fr.ContentType,
		&fr.SizeBytes,
		&fr.ContentHash,
		&fr.Description,
		&tagsRaw,
		&fr.DownloadCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", translateErr(err))
	}

	fr.Tags, err = decodeTags(tagsRaw)
	if err != nil {
		return nil, err
	}
	fr.CreatedAt = fromNano(createdAt)
	fr.UpdatedAt = fromNano(updatedAt)

	return &fr, nil
}

func (s *SQLiteStore) UpdateFile(ctx context.Context, fr *metadata.FileRecord) error {
	tags, err := encodeTags(fr.Tags)
	if err != nil {
		return err
	}
	fr.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE files
		SET filename = ?, description = ?, tags = ?, updated_at = ?
		WHERE file_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		fr.Filename, fr.Description, tags, toNano(fr.UpdatedAt), fr.FileID)
	if err != nil {
		return fmt.Errorf("failed to update file record: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListFilesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*metadata.FileRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT file_id, owner_id, object_ref, filename, content_type, size_bytes,
		       content_hash, description, tags, download_count, created_at, updated_at
		FROM files
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", translateErr(err))
	}
	defer rows.Close()

	var files []*metadata.FileRecord
	for rows.Next() {
		var fr metadata.FileRecord
		var tagsRaw string
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&fr.FileID, &fr.OwnerID, &fr.ObjectRef, &fr.Filename, &fr.ContentType,
			&fr.SizeBytes, &fr.ContentHash, &fr.Description, &tagsRaw,
			&fr.DownloadCount, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		fr.Tags, err = decodeTags(tagsRaw)
		if err != nil {
			return nil, err
		}
		fr.CreatedAt = fromNano(createdAt)
		fr.UpdatedAt = fromNano(updatedAt)
		files = append(files, &fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", translateErr(err))
	}

	return files, nil
}

func (s *SQLiteStore) CreateFileWithOwner(ctx context.Context, fr *metadata.FileRecord, owner *metadata.PermissionRecord) error {
	tags, err := encodeTags(fr.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = now
	}
	fr.UpdatedAt = fr.CreatedAt
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = fr.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translateErr(err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (
			file_id, owner_id, object_ref, filename, content_type, size_bytes,
			content_hash, description, tags, download_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		fr.FileID, fr.OwnerID, fr.ObjectRef, fr.Filename, fr.ContentType,
		fr.SizeBytes, fr.ContentHash, fr.Description, tags,
		toNano(fr.CreatedAt), toNano(fr.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return metadata.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert file record: %w", translateErr(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permissions (file_id, principal_id, role, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		owner.FileID, owner.PrincipalID, string(owner.Role), owner.GrantedBy,
		toNano(owner.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert owner permission: %w", translateErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file creation: %w", translateErr(err))
	}
	return nil
}

func (s *SQLiteStore) DeleteFileCascade(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translateErr(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shares WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete shares: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete permissions: %w", translateErr(err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", translateErr(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return metadata.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade deletion: %w", translateErr(err))
	}

	s.logger.Debug("Deleted file with cascade", zap.String("file_id", fileID))
	return nil
}

func (s *SQLiteStore) IncrementDownloadCount(ctx context.Context, fileID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET download_count = download_count + 1, updated_at = ?
		WHERE file_id = ?`,
		toNano(time.Now()), fileID)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", translateErr(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return metadata.ErrNotFound
	}
	return nil
}
