// Package metadata defines the records and storage contract for the sharefs
// access-control core: file records, permission grants, and share tokens.
// All multi-record consistency (create-with-owner, cascade delete, conditional
// share consumption) is guaranteed by Store implementations, never by callers.
package metadata

import (
	"context"
	"errors"
	"time"
)

// Common metadata errors
var (
	ErrNotFound      = errors.New("metadata not found")
	ErrAlreadyExists = errors.New("metadata already exists")
	ErrConflict      = errors.New("metadata write conflict")
	ErrUnavailable   = errors.New("metadata store unavailable")
)

// Role is a principal's capability level over a file. Roles form a total
// order: owner > editor > viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Level returns the position of the role in the capability order.
// Unknown roles rank below viewer.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Covers reports whether r grants at least the capability of required.
func (r Role) Covers(required Role) bool {
	return r.Level() >= required.Level()
}

// ParseRole validates a role string from external input.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(s), nil
	default:
		return "", errors.New("invalid role: " + s)
	}
}

// FileRecord is the stored metadata for one file. FileID, OwnerID and
// ObjectRef are immutable after creation.
type FileRecord struct {
	FileID        string    `json:"file_id"`
	OwnerID       string    `json:"owner_id"`
	ObjectRef     string    `json:"object_ref"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ContentHash   string    `json:"content_hash"`
	Description   string    `json:"description"`
	Tags          []string  `json:"tags"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PermissionRecord grants a principal a role over a file. Exactly one owner
// permission exists per file, created atomically with the FileRecord.
type PermissionRecord struct {
	FileID      string    `json:"file_id"`
	PrincipalID string    `json:"principal_id"`
	Role        Role      `json:"role"`
	GrantedBy   string    `json:"granted_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShareToken is a capability granting anonymous, time-boxed access to one
// file. TokenID is the full signed token string; its random component comes
// from a cryptographically strong source and is never derived from FileID.
// Once ExpiresAt has passed or Revoked is set the token is permanently
// unusable, even while the row lingers before cleanup.
type ShareToken struct {
	TokenID      string     `json:"token_id"`
	FileID       string     `json:"file_id"`
	IssuedBy     string     `json:"issued_by"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	MaxUses      *int64     `json:"max_uses"` // nil = unlimited
	UseCount     int64      `json:"use_count"`
	Revoked      bool       `json:"revoked"`
	PasswordHash string     `json:"password_hash,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	LastUsedIP   *string    `json:"last_used_ip,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Exhausted reports whether the token's usage bound has been reached.
func (t *ShareToken) Exhausted() bool {
	return t.MaxUses != nil && t.UseCount >= *t.MaxUses
}

// Store defines the interface for metadata storage operations.
//
// Operations that touch more than one relation for the same file
// (CreateFileWithOwner, DeleteFileCascade) either fully apply or fully fail.
// ConsumeShare and RevokeShare are conditional writes: they mutate only while
// their predicate holds and report ErrConflict when it does not, so callers
// never fall back to read-then-write.
type Store interface {
	// GetFile retrieves a file record by id
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)

	// UpdateFile updates the mutable fields of an existing file record
	// (filename, description, tags)
	UpdateFile(ctx context.Context, fr *FileRecord) error

	// ListFilesByOwner returns files owned by a principal, newest first
	ListFilesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*FileRecord, error)

	// CreateFileWithOwner atomically creates a file record together with its
	// owner permission
	CreateFileWithOwner(ctx context.Context, fr *FileRecord, owner *PermissionRecord) error

	// DeleteFileCascade atomically removes a file record and every
	// permission and share token scoped to it
	DeleteFileCascade(ctx context.Context, fileID string) error

	// IncrementDownloadCount atomically increments a file's download counter
	IncrementDownloadCount(ctx context.Context, fileID string) error

	// GetPermission retrieves the role a principal holds over a file
	GetPermission(ctx context.Context, fileID, principalID string) (*PermissionRecord, error)

	// PutPermission creates or replaces a non-owner permission
	PutPermission(ctx context.Context, pr *PermissionRecord) error

	// ListPermissions returns all permissions for a file
	ListPermissions(ctx context.Context, fileID string) ([]*PermissionRecord, error)

	// DeletePermission removes a principal's permission on a file
	DeletePermission(ctx context.Context, fileID, principalID string) error

	// GetShare retrieves a share token by its token string
	GetShare(ctx context.Context, tokenID string) (*ShareToken, error)

	// PutShare creates a new share token record
	PutShare(ctx context.Context, st *ShareToken) error

	// ListSharesForFile returns all share tokens for a file
	ListSharesForFile(ctx context.Context, fileID string) ([]*ShareToken, error)

	// ConsumeShare increments a share token's use count iff the token is not
	// revoked, not expired at now, and under its usage bound. Returns
	// ErrConflict when the predicate fails for an existing token; concurrent
	// consumers of a one-use token get exactly one success.
	ConsumeShare(ctx context.Context, tokenID string, now time.Time, usedByIP string) error

	// RevokeShare marks a share token revoked. Revoking an already-revoked
	// token is a no-op.
	RevokeShare(ctx context.Context, tokenID string) error

	// CleanupExpiredShares removes share tokens that expired before the given
	// time and returns the count removed
	CleanupExpiredShares(ctx context.Context, before time.Time) (int, error)

	// CleanupRevokedShares removes revoked share tokens last touched before
	// the given time and returns the count removed
	CleanupRevokedShares(ctx context.Context, olderThan time.Time) (int, error)

	// Close closes the metadata store connection
	Close() error
}
