// Package postgres implements the metadata.Store interface on PostgreSQL for
// multi-instance deployments, where the database is the only component shared
// across concurrent request handlers.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
)

// PostgresStore implements the metadata.Store interface using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL metadata store
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// translateErr maps driver-level failures to the metadata error taxonomy.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return metadata.ErrUnavailable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return metadata.ErrAlreadyExists
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return metadata.ErrConflict
		}
	}
	return err
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (*metadata.FileRecord, error) {
	query := `
		SELECT file_id, owner_id, object_ref, filename, content_type, size_bytes,
		       content_hash, description, tags, download_count, created_at, updated_at
		FROM files
		WHERE file_id = $1`

	var fr metadata.FileRecord
	err := s.db.QueryRowContext(ctx, query, fileID).Scan(
		&fr.FileID,
		&fr.OwnerID,
		&fr.ObjectRef,
		&fr.Filename,
		&fr.ContentType,
		&fr.SizeBytes,
		&fr.ContentHash,
		&fr.Description,
		pq.Array(&fr.Tags),
		&fr.DownloadCount,
		&fr.CreatedAt,
		&fr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", translateErr(err))
	}
	return &fr, nil
}

func (s *PostgresStore) UpdateFile(ctx context.Context, fr *metadata.FileRecord) error {
	fr.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE files
		SET filename = $2, description = $3, tags = $4, updated_at = $5
		WHERE file_id = $1`

	result, err := s.db.ExecContext(ctx, query,
		fr.FileID, fr.Filename, fr.Description, pq.Array(fr.Tags), fr.UpdatedAt)
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

func (s *PostgresStore) ListFilesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*metadata.FileRecord, error) {
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
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", translateErr(err))
	}
	defer rows.Close()

	var files []*metadata.FileRecord
	for rows.Next() {
		var fr metadata.FileRecord
		if err := rows.Scan(
			&fr.FileID, &fr.OwnerID, &fr.ObjectRef, &fr.Filename, &fr.ContentType,
			&fr.SizeBytes, &fr.ContentHash, &fr.Description, pq.Array(&fr.Tags),
			&fr.DownloadCount, &fr.CreatedAt, &fr.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		files = append(files, &fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", translateErr(err))
	}
	return files, nil
}

func (s *PostgresStore) CreateFileWithOwner(ctx context.Context, fr *metadata.FileRecord, owner *metadata.PermissionRecord) error {
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)`,
		fr.FileID, fr.OwnerID, fr.ObjectRef, fr.Filename, fr.ContentType,
		fr.SizeBytes, fr.ContentHash, fr.Description, pq.Array(fr.Tags),
		fr.CreatedAt, fr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", translateErr(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permissions (file_id, principal_id, role, granted_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		owner.FileID, owner.PrincipalID, string(owner.Role), owner.GrantedBy, owner.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert owner permission: %w", translateErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file creation: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) DeleteFileCascade(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translateErr(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shares WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete shares: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete permissions: %w", translateErr(err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_id = $1`, fileID)
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

func (s *PostgresStore) IncrementDownloadCount(ctx context.Context, fileID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET download_count = download_count + 1, updated_at = NOW()
		WHERE file_id = $1`,
		fileID)
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
