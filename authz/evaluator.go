// Package authz implements the permission evaluator: the single decision
// point for role-based access to files. Identity is a trusted input here —
// callers pass an already-authenticated principal id, never a credential.
package authz

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metrics"
)

// ErrForbidden is returned when a principal holds a role below the one an
// operation requires.
var ErrForbidden = errors.New("permission denied")

// Evaluator answers authorization questions from stored permission records.
type Evaluator struct {
	store  metadata.Store
	logger *zap.Logger
}

// NewEvaluator creates a new permission evaluator.
func NewEvaluator(store metadata.Store, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger}
}

// Authorize allows the operation iff the principal's stored role for the file
// covers the required role under the owner > editor > viewer ordering.
//
// A missing permission record surfaces as metadata.ErrNotFound — the same
// signal as a nonexistent file — so unauthorized callers cannot probe for
// file existence. Only the lifecycle manager distinguishes the two, via the
// store directly.
func (e *Evaluator) Authorize(ctx context.Context, principalID, fileID string, required metadata.Role) error {
	perm, err := e.store.GetPermission(ctx, fileID, principalID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			e.logger.Debug("Authorization denied: no permission record",
				zap.String("principal_id", principalID),
				zap.String("file_id", fileID))
			metrics.AuthzDenialsTotal.WithLabelValues(string(required)).Inc()
			return metadata.ErrNotFound
		}
		return fmt.Errorf("failed to evaluate permission: %w", err)
	}

	if !perm.Role.Covers(required) {
		e.logger.Debug("Authorization denied: insufficient role",
			zap.String("principal_id", principalID),
			zap.String("file_id", fileID),
			zap.String("held", string(perm.Role)),
			zap.String("required", string(required)))
		metrics.AuthzDenialsTotal.WithLabelValues(string(required)).Inc()
		return ErrForbidden
	}

	return nil
}

// RequiredToGrant returns the role a caller must hold to grant or revoke the
// target role: viewer grants need editor, editor grants need owner. Owner is
// never grantable; the owner permission is created with the file and never
// transferred.
func RequiredToGrant(target metadata.Role) (metadata.Role, error) {
	switch target {
	case metadata.RoleViewer:
		return metadata.RoleEditor, nil
	case metadata.RoleEditor:
		return metadata.RoleOwner, nil
	case metadata.RoleOwner:
		return "", errors.New("owner role cannot be granted")
	default:
		return "", errors.New("invalid role: " + string(target))
	}
}
