package authz

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metadata/sqlite"
)

func setupEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	store, err := sqlite.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fr := &metadata.FileRecord{
		FileID:      "f1",
		OwnerID:     "alice",
		ObjectRef:   "users/alice/files/f1/doc.txt",
		Filename:    "doc.txt",
		ContentType: "text/plain",
		SizeBytes:   1,
		ContentHash: "00",
		CreatedAt:   time.Now(),
	}
	owner := &metadata.PermissionRecord{
		FileID: "f1", PrincipalID: "alice", Role: metadata.RoleOwner, GrantedBy: "alice",
	}
	if err := store.CreateFileWithOwner(context.Background(), fr, owner); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	for principal, role := range map[string]metadata.Role{
		"bob":   metadata.RoleViewer,
		"carol": metadata.RoleEditor,
	} {
		if err := store.PutPermission(context.Background(), &metadata.PermissionRecord{
			FileID: "f1", PrincipalID: principal, Role: role, GrantedBy: "alice",
		}); err != nil {
			t.Fatalf("failed to grant %s to %s: %v", role, principal, err)
		}
	}

	return NewEvaluator(store, zap.NewNop())
}

func TestAuthorize(t *testing.T) {
	evaluator := setupEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal string
		required  metadata.Role
		wantErr   error
	}{
		{"owner covers owner", "alice", metadata.RoleOwner, nil},
		{"owner covers editor", "alice", metadata.RoleEditor, nil},
		{"owner covers viewer", "alice", metadata.RoleViewer, nil},
		{"editor covers editor", "carol", metadata.RoleEditor, nil},
		{"editor covers viewer", "carol", metadata.RoleViewer, nil},
		{"editor below owner", "carol", metadata.RoleOwner, ErrForbidden},
		{"viewer covers viewer", "bob", metadata.RoleViewer, nil},
		{"viewer below editor", "bob", metadata.RoleEditor, ErrForbidden},
		{"viewer below owner", "bob", metadata.RoleOwner, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluator.Authorize(ctx, tt.principal, "f1", tt.required)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Errorf("Authorize(%s, f1, %s) = %v, want %v", tt.principal, tt.required, err, tt.wantErr)
			}
		})
	}
}

// A principal with no permission record must see the same error as a
// principal probing a file that does not exist at all.
func TestAuthorizeMasksExistence(t *testing.T) {
	evaluator := setupEvaluator(t)
	ctx := context.Background()

	errExisting := evaluator.Authorize(ctx, "mallory", "f1", metadata.RoleViewer)
	errMissing := evaluator.Authorize(ctx, "mallory", "no-such-file", metadata.RoleViewer)

	if !errors.Is(errExisting, metadata.ErrNotFound) {
		t.Errorf("no-permission error = %v, want ErrNotFound", errExisting)
	}
	if !errors.Is(errMissing, metadata.ErrNotFound) {
		t.Errorf("no-file error = %v, want ErrNotFound", errMissing)
	}
}

func TestRequiredToGrant(t *testing.T) {
	tests := []struct {
		target   metadata.Role
		required metadata.Role
		wantErr  bool
	}{
		{metadata.RoleViewer, metadata.RoleEditor, false},
		{metadata.RoleEditor, metadata.RoleOwner, false},
		{metadata.RoleOwner, "", true},
		{metadata.Role("admin"), "", true},
	}
	for _, tt := range tests {
		got, err := RequiredToGrant(tt.target)
		if tt.wantErr {
			if err == nil {
				t.Errorf("RequiredToGrant(%s) succeeded, want error", tt.target)
			}
			continue
		}
		if err != nil {
			t.Errorf("RequiredToGrant(%s) failed: %v", tt.target, err)
			continue
		}
		if got != tt.required {
			t.Errorf("RequiredToGrant(%s) = %s, want %s", tt.target, got, tt.required)
		}
	}
}
