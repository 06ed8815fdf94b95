package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ebogdum/sharefs/metadata"
)

func (s *SQLiteStore) GetPermission(ctx context.Context, fileID, principalID string) (*metadata.PermissionRecord, error) {
	query := `
		SELECT file_id, principal_id, role, granted_by, created_at
		FROM permissions
		WHERE file_id = ? AND principal_id = ?`

	var pr metadata.PermissionRecord
	var role string
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, fileID, principalID).Scan(
		&pr.FileID, &pr.PrincipalID, &role, &pr.GrantedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", translateErr(err))
	}

	pr.Role = metadata.Role(role)
	pr.CreatedAt = fromNano(createdAt)
	return &pr, nil
}

func (s *SQLiteStore) PutPermission(ctx context.Context, pr *metadata.PermissionRecord) error {
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}

	// Upsert: a grant to a principal that already holds a role replaces it.
	query := `
		INSERT INTO permissions (file_id, principal_id, role, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (file_id, principal_id)
		DO UPDATE SET role = excluded.role, granted_by = excluded.granted_by`

	if _, err := s.db.ExecContext(ctx, query,
		pr.FileID, pr.PrincipalID, string(pr.Role), pr.GrantedBy, toNano(pr.CreatedAt)); err != nil {
		return fmt.Errorf("failed to put permission: %w", translateErr(err))
	}
	return nil
}

func (s *SQLiteStore) ListPermissions(ctx context.Context, fileID string) ([]*metadata.PermissionRecord, error) {
	query := `
		SELECT file_id, principal_id, role, granted_by, created_at
		FROM permissions
		WHERE file_id = ?
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", translateErr(err))
	}
	defer rows.Close()

	var perms []*metadata.PermissionRecord
	for rows.Next() {
		var pr metadata.PermissionRecord
		var role string
		var createdAt int64
		if err := rows.Scan(&pr.FileID, &pr.PrincipalID, &role, &pr.GrantedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		pr.Role = metadata.Role(role)
		pr.CreatedAt = fromNano(createdAt)
		perms = append(perms, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", translateErr(err))
	}
	return perms, nil
}

func (s *SQLiteStore) DeletePermission(ctx context.Context, fileID, principalID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM permissions WHERE file_id = ? AND principal_id = ?`,
		fileID, principalID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", translateErr(err))
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
