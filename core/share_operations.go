package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/shares"
)

// IssueShare mints a share token for a file on behalf of the caller.
func (e *Engine) IssueShare(ctx context.Context, callerID, fileID string, ttl time.Duration, maxUses *int64, password string) (*metadata.ShareToken, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.shareManager.Issue(sctx, callerID, fileID, ttl, maxUses, password)
}

// RevokeShare marks a share token permanently unusable.
func (e *Engine) RevokeShare(ctx context.Context, callerID, tokenID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.shareManager.Revoke(sctx, callerID, tokenID)
}

// ListShares returns all share tokens for a file. Requires editor.
func (e *Engine) ListShares(ctx context.Context, callerID, fileID string) ([]*metadata.ShareToken, error) {
	if err := e.evaluator.Authorize(ctx, callerID, fileID, metadata.RoleEditor); err != nil {
		return nil, err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.ListSharesForFile(sctx, fileID)
}

// ResolveShare redeems a share token anonymously and returns a presigned
// download URL for the shared file. Every failure mode must be presented to
// the anonymous caller identically; the distinct errors feed logs and
// metrics only.
func (e *Engine) ResolveShare(ctx context.Context, token, password, remoteIP string) (string, *metadata.FileRecord, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	st, err := e.shareManager.Resolve(sctx, token, password, remoteIP)
	if err != nil {
		return "", nil, err
	}

	fr, err := e.store.GetFile(sctx, st.FileID)
	if err != nil {
		// Cascade delete removes tokens with their file, so a consumed token
		// pointing at nothing means we raced a delete. Deny like any other
		// failed resolution.
		e.logger.Warn("Share token resolved but file is gone",
			zap.String("token", shares.TruncateToken(token)),
			zap.String("file_id", st.FileID),
			zap.Error(err))
		return "", nil, shares.ErrTokenNotFound
	}

	url, err := e.blobStore.PresignGet(ctx, fr.ObjectRef, fr.Filename, e.presignTTL)
	if err != nil {
		return "", nil, fmt.Errorf("presigning shared download: %w", err)
	}

	if err := e.store.IncrementDownloadCount(sctx, fr.FileID); err != nil {
		e.logger.Warn("Failed to increment download count",
			zap.String("file_id", fr.FileID),
			zap.Error(err))
	}

	return url, fr, nil
}
