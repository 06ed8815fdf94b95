package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ebogdum/sharefs/metadata"
)

func (s *PostgresStore) GetPermission(ctx context.Context, fileID, principalID string) (*metadata.PermissionRecord, error) {
	query := `
		SELECT file_id, principal_id, role, granted_by, created_at
		FROM permissions
		WHERE file_id = $1 AND principal_id = $2`

	var pr metadata.PermissionRecord
	var role string
	err := s.db.QueryRowContext(ctx, query, fileID, principalID).Scan(
		&pr.FileID, &pr.PrincipalID, &role, &pr.GrantedBy, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", translateErr(err))
	}

	pr.Role = metadata.Role(role)
	return &pr, nil
}

func (s *PostgresStore) PutPermission(ctx context.Context, pr *metadata.PermissionRecord) error {
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO permissions (file_id, principal_id, role, granted_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_id, principal_id)
		DO UPDATE SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by`

	if _, err := s.db.ExecContext(ctx, query,
		pr.FileID, pr.PrincipalID, string(pr.Role), pr.GrantedBy, pr.CreatedAt); err != nil {
		return fmt.Errorf("failed to put permission: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) ListPermissions(ctx context.Context, fileID string) ([]*metadata.PermissionRecord, error) {
	query := `
		SELECT file_id, principal_id, role, granted_by, created_at
		FROM permissions
		WHERE file_id = $1
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
		if err := rows.Scan(&pr.FileID, &pr.PrincipalID, &role, &pr.GrantedBy, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		pr.Role = metadata.Role(role)
		perms = append(perms, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", translateErr(err))
	}
	return perms, nil
}

func (s *PostgresStore) DeletePermission(ctx context.Context, fileID, principalID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM permissions WHERE file_id = $1 AND principal_id = $2`,
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
