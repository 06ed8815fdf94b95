package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/internal/fname"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metrics"
)

// CreateFileRequest carries the caller-supplied attributes of an upload.
type CreateFileRequest struct {
	Filename    string
	ContentType string
	Description string
	Tags        []string
	Size        int64
	Body        io.Reader
}

// CreateFile stores the file content in the blob store, then registers the
// metadata record with an owner permission in one transaction. If the
// metadata write fails the blob is rolled back, so a failed upload leaves no
// visible record. Returns the stored record.
func (e *Engine) CreateFile(ctx context.Context, principalID string, req CreateFileRequest) (*metadata.FileRecord, error) {
	if req.Size < 0 {
		return nil, fmt.Errorf("%w: negative content length", ErrInvalidInput)
	}
	if req.Size > e.maxUploadBytes {
		return nil, fmt.Errorf("%w: file size %d exceeds limit %d", ErrInvalidInput, req.Size, e.maxUploadBytes)
	}

	filename := fname.Sanitize(req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileID := uuid.NewString()
	objectRef := fmt.Sprintf("users/%s/files/%s/%s", principalID, fileID, filename)

	hasher := sha256.New()
	body := io.TeeReader(req.Body, hasher)

	if err := e.blobStore.Put(ctx, objectRef, body, req.Size, contentType); err != nil {
		return nil, fmt.Errorf("storing file content: %w", err)
	}

	now := time.Now().UTC()
	fr := &metadata.FileRecord{
		FileID:      fileID,
		OwnerID:     principalID,
		ObjectRef:   objectRef,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   req.Size,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Description: req.Description,
		Tags:        req.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &metadata.PermissionRecord{
		FileID:      fileID,
		PrincipalID: principalID,
		Role:        metadata.RoleOwner,
		GrantedBy:   principalID,
		CreatedAt:   now,
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.CreateFileWithOwner(sctx, fr, owner); err != nil {
		// Metadata never saw this file; remove the blob so nothing orphans.
		e.deleteBlobWithRetry(objectRef)
		return nil, fmt.Errorf("registering file metadata: %w", err)
	}

	metrics.FileUploadsTotal.Inc()
	e.logger.Info("File created",
		zap.String("file_id", fileID),
		zap.String("owner_id", principalID),
		zap.Int64("size_bytes", req.Size))
	return fr, nil
}

// GetFileInfo returns the metadata record for a file the principal can view.
func (e *Engine) GetFileInfo(ctx context.Context, principalID, fileID string) (*metadata.FileRecord, error) {
	if err := e.evaluator.Authorize(ctx, principalID, fileID, metadata.RoleViewer); err != nil {
		return nil, err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.GetFile(sctx, fileID)
}

// ListFiles returns the files owned by the principal.
func (e *Engine) ListFiles(ctx context.Context, principalID string, limit, offset int) ([]*metadata.FileRecord, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.ListFilesByOwner(sctx, principalID, limit, offset)
}

// DeleteFile removes a file and everything attached to it. Metadata goes
// first in a single cascade so no share token or permission can outlive the
// record; the blob delete runs after and is best-effort.
func (e *Engine) DeleteFile(ctx context.Context, principalID, fileID string) error {
	if err := e.evaluator.Authorize(ctx, principalID, fileID, metadata.RoleOwner); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	fr, err := e.store.GetFile(sctx, fileID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteFileCascade(sctx, fileID); err != nil {
		return fmt.Errorf("deleting file metadata: %w", err)
	}

	// The record is gone; a blob that survives the retries is unreachable
	// garbage, not a correctness problem.
	e.deleteBlobWithRetry(fr.ObjectRef)

	metrics.FileDeletionsTotal.Inc()
	e.logger.Info("File deleted",
		zap.String("file_id", fileID),
		zap.String("principal_id", principalID))
	return nil
}

// Download authorizes the principal for viewer access and returns a
// presigned download URL for the file content.
func (e *Engine) Download(ctx context.Context, principalID, fileID string) (string, *metadata.FileRecord, error) {
	if err := e.evaluator.Authorize(ctx, principalID, fileID, metadata.RoleViewer); err != nil {
		return "", nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	fr, err := e.store.GetFile(sctx, fileID)
	if err != nil {
		return "", nil, err
	}

	url, err := e.blobStore.PresignGet(ctx, fr.ObjectRef, fr.Filename, e.presignTTL)
	if err != nil {
		return "", nil, fmt.Errorf("presigning download: %w", err)
	}

	if err := e.store.IncrementDownloadCount(sctx, fileID); err != nil {
		e.logger.Warn("Failed to increment download count",
			zap.String("file_id", fileID),
			zap.Error(err))
	}

	metrics.FileDownloadsTotal.Inc()
	return url, fr, nil
}
