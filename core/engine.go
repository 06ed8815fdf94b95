// Package core implements the lifecycle manager: the orchestration layer
// that keeps the metadata store and the blob store consistent and enforces
// authorization on every mutating operation. No caller can observe a
// half-done state through it.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/blob"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metrics"
	"github.com/ebogdum/sharefs/shares"
)

// ErrInvalidInput is returned for malformed request values (bad role, bad
// ttl, oversized upload).
var ErrInvalidInput = errors.New("invalid input")

// Engine orchestrates file lifecycle operations across the metadata store,
// the blob store, the permission evaluator and the share token service.
type Engine struct {
	store          metadata.Store
	blobStore      blob.Storage
	evaluator      *authz.Evaluator
	shareManager   *shares.Manager
	maxUploadBytes int64
	presignTTL     time.Duration
	opTimeout      time.Duration
	logger         *zap.Logger
}

// NewEngine creates a new lifecycle engine.
func NewEngine(
	store metadata.Store,
	blobStore blob.Storage,
	evaluator *authz.Evaluator,
	shareManager *shares.Manager,
	maxUploadBytes int64,
	presignTTL time.Duration,
	opTimeout time.Duration,
	logger *zap.Logger,
) *Engine {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 30
	}
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &Engine{
		store:          store,
		blobStore:      blobStore,
		evaluator:      evaluator,
		shareManager:   shareManager,
		maxUploadBytes: maxUploadBytes,
		presignTTL:     presignTTL,
		opTimeout:      opTimeout,
		logger:         logger,
	}
}

// storeCtx bounds a metadata store call. Timeouts surface to callers as
// metadata.ErrUnavailable through the stores' error translation.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout > 0 {
		return context.WithTimeout(ctx, e.opTimeout)
	}
	return context.WithCancel(ctx)
}

// deleteBlobWithRetry removes a blob with bounded exponential backoff. Used
// both for rollback of orphaned blobs and for post-cascade blob deletion; a
// blob that survives all retries is transient garbage for the out-of-band
// sweep, and is counted.
func (e *Engine) deleteBlobWithRetry(ref string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err := backoff.Retry(func() error {
		return e.blobStore.Delete(ctx, ref)
	}, bo)
	if err != nil {
		metrics.OrphanedBlobsTotal.Inc()
		e.logger.Error("Failed to delete blob after retries; leaving for sweep",
			zap.String("object_ref", ref),
			zap.Error(err))
	}
	return err
}
