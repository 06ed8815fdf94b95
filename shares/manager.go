// Package shares implements the share token service: minting, resolving and
// revoking the signed, expiring tokens that grant anonymous access to a file.
// Token unguessability is the sole line of defense on the anonymous path, so
// token ids come from crypto/rand and carry an HMAC signature binding them to
// their file.
package shares

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metrics"
)

var (
	ErrTokenNotFound  = errors.New("share token not found")
	ErrTokenInvalid   = errors.New("share token is invalid")
	ErrTokenExpired   = errors.New("share token has expired")
	ErrTokenRevoked   = errors.New("share token has been revoked")
	ErrTokenExhausted = errors.New("share token usage limit reached")
	ErrBadPassword    = errors.New("share token password mismatch")
	ErrInvalidTTL     = errors.New("share ttl out of range")
	ErrInvalidMaxUses = errors.New("share max uses must be positive")
)

// Manager manages the lifecycle of share tokens.
type Manager struct {
	store         metadata.Store
	evaluator     *authz.Evaluator
	secretKey     []byte
	maxTTL        time.Duration
	skewTolerance time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewManager creates a share token manager. maxTTL bounds the worst-case
// exposure window of any token; skewTolerance bounds how far a resolving
// node's clock may trail the issuing node's.
func NewManager(store metadata.Store, evaluator *authz.Evaluator, secretKey string, maxTTL, skewTolerance time.Duration, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("metadata store cannot be nil")
	}
	if evaluator == nil {
		return nil, errors.New("permission evaluator cannot be nil")
	}
	if secretKey == "" {
		return nil, errors.New("secret key cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if maxTTL <= 0 {
		maxTTL = 24 * time.Hour
	}
	if skewTolerance <= 0 {
		skewTolerance = 30 * time.Second
	}

	// Hash the secret key for HMAC
	h := sha256.Sum256([]byte(secretKey))

	return &Manager{
		store:         store,
		evaluator:     evaluator,
		secretKey:     h[:],
		maxTTL:        maxTTL,
		skewTolerance: skewTolerance,
		now:           time.Now,
		logger:        logger,
	}, nil
}

// Issue mints a share token for fileID on behalf of principalID. The caller
// must hold editor or owner on the file. A non-empty password is stored as a
// SHA-256 digest and required on every resolution.
func (m *Manager) Issue(ctx context.Context, principalID, fileID string, ttl time.Duration, maxUses *int64, password string) (*metadata.ShareToken, error) {
	if err := m.evaluator.Authorize(ctx, principalID, fileID, metadata.RoleEditor); err != nil {
		return nil, err
	}

	if ttl <= 0 || ttl > m.maxTTL {
		return nil, ErrInvalidTTL
	}
	if maxUses != nil && *maxUses <= 0 {
		return nil, ErrInvalidMaxUses
	}

	token, err := m.generateToken(fileID)
	if err != nil {
		m.logger.Error("Failed to generate share token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := m.now().UTC()
	st := &metadata.ShareToken{
		TokenID:   token,
		FileID:    fileID,
		IssuedBy:  principalID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		MaxUses:   maxUses,
	}
	if password != "" {
		st.PasswordHash = hashPassword(password)
	}

	if err := m.store.PutShare(ctx, st); err != nil {
		m.logger.Error("Failed to store share token",
			zap.String("token", TruncateToken(token)),
			zap.String("file_id", fileID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to store share token: %w", err)
	}

	m.logger.Info("Issued share token",
		zap.String("token", TruncateToken(token)),
		zap.String("file_id", fileID),
		zap.String("issued_by", principalID),
		zap.Time("expires_at", st.ExpiresAt),
		zap.Bool("has_password", st.PasswordHash != ""))

	metrics.ShareIssuesTotal.Inc()

	return st, nil
}

// Resolve validates a token and atomically consumes one use. The checks run
// in a fixed order: existence, signature, revocation, expiry, usage bound,
// password. The mutating step is the store's conditional ConsumeShare, so a
// one-use token redeemed concurrently yields exactly one success.
//
// Callers on the anonymous path must collapse every returned error into one
// uniform denial; the distinct sentinels exist for logs and metrics only.
func (m *Manager) Resolve(ctx context.Context, token, password, remoteIP string) (*metadata.ShareToken, error) {
	st, err := m.store.GetShare(ctx, token)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			m.observe("not_found", token, remoteIP)
			return nil, ErrTokenNotFound
		}
		m.logger.Error("Failed to retrieve share token",
			zap.String("token", TruncateToken(token)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve share token: %w", err)
	}

	if !m.verifySignature(token, st.FileID) {
		m.observe("invalid", token, remoteIP)
		return nil, ErrTokenInvalid
	}

	if st.Revoked {
		m.observe("revoked", token, remoteIP)
		return nil, ErrTokenRevoked
	}

	now := m.now().UTC()
	// A clock reading earlier than the issue time by more than the tolerance
	// means a regressed clock could be extending the window; fail closed.
	if now.Before(st.IssuedAt.Add(-m.skewTolerance)) {
		m.observe("invalid", token, remoteIP)
		return nil, ErrTokenInvalid
	}
	// Matches the store's consume predicate (expires_at > now): a token is
	// expired from the instant its expiry is reached.
	if !now.Before(st.ExpiresAt) {
		m.observe("expired", token, remoteIP)
		return nil, ErrTokenExpired
	}

	if st.Exhausted() {
		m.observe("exhausted", token, remoteIP)
		return nil, ErrTokenExhausted
	}

	if st.PasswordHash != "" {
		if subtle.ConstantTimeCompare([]byte(hashPassword(password)), []byte(st.PasswordHash)) != 1 {
			m.observe("bad_password", token, remoteIP)
			return nil, ErrBadPassword
		}
	}

	if err := m.store.ConsumeShare(ctx, token, now, remoteIP); err != nil {
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			m.observe("not_found", token, remoteIP)
			return nil, ErrTokenNotFound
		case errors.Is(err, metadata.ErrConflict):
			// Lost a race or the state changed under us; re-read to classify.
			return nil, m.classifyConflict(ctx, token, now, remoteIP)
		default:
			m.logger.Error("Failed to consume share token",
				zap.String("token", TruncateToken(token)),
				zap.Error(err))
			return nil, fmt.Errorf("failed to consume share token: %w", err)
		}
	}

	st.UseCount++
	st.LastUsedAt = &now
	st.LastUsedIP = &remoteIP

	m.logger.Info("Share token resolved",
		zap.String("token", TruncateToken(token)),
		zap.String("file_id", st.FileID),
		zap.String("remote_ip", remoteIP),
		zap.Int64("use_count", st.UseCount))
	metrics.ShareResolutionsTotal.WithLabelValues("success").Inc()

	return st, nil
}

// Revoke marks a token permanently unusable. The caller must be the issuer
// or hold editor/owner on the token's file.
func (m *Manager) Revoke(ctx context.Context, principalID, tokenID string) error {
	st, err := m.store.GetShare(ctx, tokenID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to retrieve share token: %w", err)
	}

	if st.IssuedBy != principalID {
		if err := m.evaluator.Authorize(ctx, principalID, st.FileID, metadata.RoleEditor); err != nil {
			// A caller holding the token string already knows it exists, but
			// lacking a role on the file is still just "forbidden".
			return authz.ErrForbidden
		}
	}

	if err := m.store.RevokeShare(ctx, tokenID); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to revoke share token: %w", err)
	}

	m.logger.Info("Share token revoked",
		zap.String("token", TruncateToken(tokenID)),
		zap.String("file_id", st.FileID),
		zap.String("revoked_by", principalID))
	metrics.ShareRevocationsTotal.Inc()

	return nil
}

// classifyConflict re-reads a token whose conditional consume failed and
// maps the state to a terminal error.
func (m *Manager) classifyConflict(ctx context.Context, token string, now time.Time, remoteIP string) error {
	st, err := m.store.GetShare(ctx, token)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			m.observe("not_found", token, remoteIP)
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to re-read share token: %w", err)
	}

	switch {
	case st.Revoked:
		m.observe("revoked", token, remoteIP)
		return ErrTokenRevoked
	case !now.Before(st.ExpiresAt):
		m.observe("expired", token, remoteIP)
		return ErrTokenExpired
	default:
		// A concurrent redemption took the last use.
		m.observe("exhausted", token, remoteIP)
		return ErrTokenExhausted
	}
}

func (m *Manager) observe(outcome, token, remoteIP string) {
	m.logger.Warn("Share token resolution denied",
		zap.String("outcome", outcome),
		zap.String("token", TruncateToken(token)),
		zap.String("remote_ip", remoteIP))
	metrics.ShareResolutionsTotal.WithLabelValues(outcome).Inc()
}

// generateToken builds the externally visible token string: a random id and
// an HMAC-SHA256 signature over id + fileID, both base64url.
func (m *Manager) generateToken(fileID string) (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	tokenID := base64.URLEncoding.EncodeToString(idBytes)

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(tokenID + fileID))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return tokenID + "." + signature, nil
}

// verifySignature checks the HMAC signature embedded in the token against
// the file the stored record points at, in constant time.
func (m *Manager) verifySignature(token, fileID string) bool {
	dot := strings.IndexByte(token, '.')
	if dot == -1 {
		return false
	}
	tokenID := token[:dot]
	providedSignature := token[dot+1:]

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(tokenID + fileID))
	expectedSignature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(providedSignature), []byte(expectedSignature))
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// TruncateToken returns a redacted token suitable for logs.
func TruncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

// SetClock overrides the manager's time source. Test use only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
