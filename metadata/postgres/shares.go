package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
)

func scanShare(scan func(dest ...any) error) (*metadata.ShareToken, error) {
	var st metadata.ShareToken
	var maxUses sql.NullInt64
	var passwordHash, lastUsedIP sql.NullString
	var lastUsedAt sql.NullTime

	err := scan(
		&st.TokenID, &st.FileID, &st.IssuedBy, &st.IssuedAt, &st.ExpiresAt,
		&maxUses, &st.UseCount, &st.Revoked, &passwordHash, &lastUsedAt,
		&lastUsedIP, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if maxUses.Valid {
		st.MaxUses = &maxUses.Int64
	}
	if passwordHash.Valid {
		st.PasswordHash = passwordHash.String
	}
	if lastUsedAt.Valid {
		st.LastUsedAt = &lastUsedAt.Time
	}
	if lastUsedIP.Valid {
		st.LastUsedIP = &lastUsedIP.String
	}
	return &st, nil
}

const shareColumns = `token_id, file_id, issued_by, issued_at, expires_at, max_uses,
	use_count, revoked, password_hash, last_used_at, last_used_ip, updated_at`

func (s *PostgresStore) GetShare(ctx context.Context, tokenID string) (*metadata.ShareToken, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE token_id = $1`

	row := s.db.QueryRowContext(ctx, query, tokenID)
	st, err := scanShare(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share token: %w", translateErr(err))
	}
	return st, nil
}

func (s *PostgresStore) PutShare(ctx context.Context, st *metadata.ShareToken) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	var maxUses sql.NullInt64
	if st.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: *st.MaxUses, Valid: true}
	}
	var passwordHash sql.NullString
	if st.PasswordHash != "" {
		passwordHash = sql.NullString{String: st.PasswordHash, Valid: true}
	}

	query := `
		INSERT INTO shares (
			token_id, file_id, issued_by, issued_at, expires_at, max_uses,
			use_count, revoked, password_hash, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, $7, $8)`

	if _, err := s.db.ExecContext(ctx, query,
		st.TokenID, st.FileID, st.IssuedBy, st.IssuedAt, st.ExpiresAt,
		maxUses, passwordHash, st.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create share token: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) ListSharesForFile(ctx context.Context, fileID string) ([]*metadata.ShareToken, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE file_id = $1 ORDER BY issued_at DESC`

	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share tokens: %w", translateErr(err))
	}
	defer rows.Close()

	var tokens []*metadata.ShareToken
	for rows.Next() {
		st, err := scanShare(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share token: %w", err)
		}
		tokens = append(tokens, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share tokens: %w", translateErr(err))
	}
	return tokens, nil
}

// ConsumeShare performs the conditional increment that makes share redemption
// race-free across instances: the predicate re-checks revocation, expiry and
// the usage bound inside the UPDATE itself.
func (s *PostgresStore) ConsumeShare(ctx context.Context, tokenID string, now time.Time, usedByIP string) error {
	query := `
		UPDATE shares
		SET use_count = use_count + 1,
		    last_used_at = $2,
		    last_used_ip = $3,
		    updated_at = $2
		WHERE token_id = $1
		  AND revoked = FALSE
		  AND expires_at > $2
		  AND (max_uses IS NULL OR use_count < max_uses)`

	result, err := s.db.ExecContext(ctx, query, tokenID, now.UTC(), usedByIP)
	if err != nil {
		return fmt.Errorf("failed to consume share token: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM shares WHERE token_id = $1`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check share token: %w", translateErr(err))
	}
	return metadata.ErrConflict
}

func (s *PostgresStore) RevokeShare(ctx context.Context, tokenID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE shares
		SET revoked = TRUE, updated_at = NOW()
		WHERE token_id = $1 AND revoked = FALSE`,
		tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke share token: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM shares WHERE token_id = $1`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check share token: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) CleanupExpiredShares(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired shares: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		s.logger.Debug("Cleaned up expired share tokens",
			zap.Int64("count", affected),
			zap.Time("before", before))
	}
	return int(affected), nil
}

func (s *PostgresStore) CleanupRevokedShares(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE revoked = TRUE AND updated_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup revoked shares: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}
