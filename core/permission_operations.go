package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/metadata"
)

// GrantRole grants targetPrincipal the given role over a file. Granting
// viewer requires editor on the file; granting editor requires owner. The
// owner role is never grantable, and an existing owner permission is never
// overwritten. Replacing an existing grant additionally requires the
// authority that grant itself needed, so an editor cannot demote a peer
// editor to viewer.
func (e *Engine) GrantRole(ctx context.Context, callerID, fileID, targetPrincipal string, role metadata.Role) error {
	if targetPrincipal == "" {
		return fmt.Errorf("%w: target principal required", ErrInvalidInput)
	}

	required, err := authz.RequiredToGrant(role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.evaluator.Authorize(ctx, callerID, fileID, required); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	existing, err := e.store.GetPermission(sctx, fileID, targetPrincipal)
	switch {
	case err == nil:
		// The owner permission is immutable; granting over it would demote.
		if existing.Role == metadata.RoleOwner {
			return authz.ErrForbidden
		}
		if existing.Role != role {
			replaceRequired, err := authz.RequiredToGrant(existing.Role)
			if err != nil {
				return authz.ErrForbidden
			}
			if err := e.evaluator.Authorize(ctx, callerID, fileID, replaceRequired); err != nil {
				return err
			}
		}
	case errors.Is(err, metadata.ErrNotFound):
		// No existing grant to replace.
	default:
		return fmt.Errorf("checking existing permission: %w", err)
	}

	pr := &metadata.PermissionRecord{
		FileID:      fileID,
		PrincipalID: targetPrincipal,
		Role:        role,
		GrantedBy:   callerID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.PutPermission(sctx, pr); err != nil {
		return fmt.Errorf("storing permission: %w", err)
	}

	e.logger.Info("Role granted",
		zap.String("file_id", fileID),
		zap.String("principal_id", targetPrincipal),
		zap.String("role", string(role)),
		zap.String("granted_by", callerID))
	return nil
}

// RevokeRole removes targetPrincipal's grant of the given role on a file.
// The caller needs the same role the matching grant would have needed. A
// grant that does not exist, or exists with a different role, reports
// metadata.ErrNotFound. The owner permission cannot be revoked.
func (e *Engine) RevokeRole(ctx context.Context, callerID, fileID, targetPrincipal string, role metadata.Role) error {
	required, err := authz.RequiredToGrant(role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.evaluator.Authorize(ctx, callerID, fileID, required); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	existing, err := e.store.GetPermission(sctx, fileID, targetPrincipal)
	if err != nil {
		return err
	}
	if existing.Role == metadata.RoleOwner {
		return authz.ErrForbidden
	}
	if existing.Role != role {
		return metadata.ErrNotFound
	}

	if err := e.store.DeletePermission(sctx, fileID, targetPrincipal); err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}

	e.logger.Info("Role revoked",
		zap.String("file_id", fileID),
		zap.String("principal_id", targetPrincipal),
		zap.String("role", string(role)),
		zap.String("revoked_by", callerID))
	return nil
}

// ListPermissions returns all permission grants on a file. Requires editor.
func (e *Engine) ListPermissions(ctx context.Context, callerID, fileID string) ([]*metadata.PermissionRecord, error) {
	if err := e.evaluator.Authorize(ctx, callerID, fileID, metadata.RoleEditor); err != nil {
		return nil, err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.ListPermissions(sctx, fileID)
}
