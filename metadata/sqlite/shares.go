package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
)

func (s *SQLiteStore) GetShare(ctx context.Context, tokenID string) (*metadata.ShareToken, error) {
	query := `
		SELECT token_id, file_id, issued_by, issued_at, expires_at, max_uses,
		       use_count, revoked, password_hash, last_used_at, last_used_ip, updated_at
		FROM shares
		WHERE token_id = ?`

	var st metadata.ShareToken
	var issuedAt, expiresAt, updatedAt int64
	var maxUses, lastUsedAt sql.NullInt64
	var revoked int
	var passwordHash, lastUsedIP sql.NullString

	err := s.db.QueryRowContext(ctx, query, tokenID).Scan(
		&st.TokenID, &st.FileID, &st.IssuedBy, &issuedAt, &expiresAt, &maxUses,
		&st.UseCount, &revoked, &passwordHash, &lastUsedAt, &lastUsedIP, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share token: %w", translateErr(err))
	}

	st.IssuedAt = fromNano(issuedAt)
	st.ExpiresAt = fromNano(expiresAt)
	st.UpdatedAt = fromNano(updatedAt)
	st.Revoked = revoked != 0
	if maxUses.Valid {
		st.MaxUses = &maxUses.Int64
	}
	if passwordHash.Valid {
		st.PasswordHash = passwordHash.String
	}
	if lastUsedAt.Valid {
		t := fromNano(lastUsedAt.Int64)
		st.LastUsedAt = &t
	}
	if lastUsedIP.Valid {
		st.LastUsedIP = &lastUsedIP.String
	}

	return &st, nil
}

func (s *SQLiteStore) PutShare(ctx context.Context, st *metadata.ShareToken) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		st.TokenID, st.FileID, st.IssuedBy, toNano(st.IssuedAt), toNano(st.ExpiresAt),
		maxUses, passwordHash, toNano(st.UpdatedAt)); err != nil {
		if isUniqueViolation(err) {
			return metadata.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create share token: %w", translateErr(err))
	}
	return nil
}

func (s *SQLiteStore) ListSharesForFile(ctx context.Context, fileID string) ([]*metadata.ShareToken, error) {
	query := `
		SELECT token_id, file_id, issued_by, issued_at, expires_at, max_uses,
		       use_count, revoked, password_hash, last_used_at, last_used_ip, updated_at
		FROM shares
		WHERE file_id = ?
		ORDER BY issued_at DESC`

	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share tokens: %w", translateErr(err))
	}
	defer rows.Close()

	var tokens []*metadata.ShareToken
	for rows.Next() {
		var st metadata.ShareToken
		var issuedAt, expiresAt, updatedAt int64
		var maxUses, lastUsedAt sql.NullInt64
		var revoked int
		var passwordHash, lastUsedIP sql.NullString

		if err := rows.Scan(
			&st.TokenID, &st.FileID, &st.IssuedBy, &issuedAt, &expiresAt, &maxUses,
			&st.UseCount, &revoked, &passwordHash, &lastUsedAt, &lastUsedIP, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan share token: %w", err)
		}
		st.IssuedAt = fromNano(issuedAt)
		st.ExpiresAt = fromNano(expiresAt)
		st.UpdatedAt = fromNano(updatedAt)
		st.Revoked = revoked != 0
		if maxUses.Valid {
			st.MaxUses = &maxUses.Int64
		}
		if passwordHash.Valid {
			st.PasswordHash = passwordHash.String
		}
		if lastUsedAt.Valid {
			t := fromNano(lastUsedAt.Int64)
			st.LastUsedAt = &t
		}
		if lastUsedIP.Valid {
			st.LastUsedIP = &lastUsedIP.String
		}
		tokens = append(tokens, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share tokens: %w", translateErr(err))
	}
	return tokens, nil
}

// ConsumeShare performs the conditional increment that makes share redemption
// race-free: the predicate re-checks revocation, expiry and the usage bound
// inside the UPDATE itself, so two concurrent redemptions of a one-use token
// can never both succeed.
func (s *SQLiteStore) ConsumeShare(ctx context.Context, tokenID string, now time.Time, usedByIP string) error {
	query := `
		UPDATE shares
		SET use_count = use_count + 1,
		    last_used_at = ?,
		    last_used_ip = ?,
		    updated_at = ?
		WHERE token_id = ?
		  AND revoked = 0
		  AND expires_at > ?
		  AND (max_uses IS NULL OR use_count < max_uses)`

	nowNano := toNano(now)
	result, err := s.db.ExecContext(ctx, query, nowNano, usedByIP, nowNano, tokenID, nowNano)
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

	// Distinguish a missing token from one whose predicate failed.
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM shares WHERE token_id = ?`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check share token: %w", translateErr(err))
	}
	return metadata.ErrConflict
}

func (s *SQLiteStore) RevokeShare(ctx context.Context, tokenID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE shares
		SET revoked = 1, updated_at = ?
		WHERE token_id = ? AND revoked = 0`,
		toNano(time.Now()), tokenID)
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
		`SELECT 1 FROM shares WHERE token_id = ?`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check share token: %w", translateErr(err))
	}
	// Already revoked.
	return nil
}

func (s *SQLiteStore) CleanupExpiredShares(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE expires_at < ?`, toNano(before))
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

func (s *SQLiteStore) CleanupRevokedShares(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE revoked = 1 AND updated_at < ?`, toNano(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup revoked shares: %w", translateErr(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
