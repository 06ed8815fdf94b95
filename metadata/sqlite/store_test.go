package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testFile(fileID, ownerID string, createdAt time.Time) *metadata.FileRecord {
	return &metadata.FileRecord{
		FileID:      fileID,
		OwnerID:     ownerID,
		ObjectRef:   "users/" + ownerID + "/files/" + fileID + "/doc.txt",
		Filename:    "doc.txt",
		ContentType: "text/plain",
		SizeBytes:   42,
		ContentHash: "deadbeef",
		Tags:        []string{"a", "b"},
		CreatedAt:   createdAt,
	}
}

func ownerPerm(fr *metadata.FileRecord) *metadata.PermissionRecord {
	return &metadata.PermissionRecord{
		FileID:      fr.FileID,
		PrincipalID: fr.OwnerID,
		Role:        metadata.RoleOwner,
		GrantedBy:   fr.OwnerID,
	}
}

func mustCreateFile(t *testing.T, store *SQLiteStore, fr *metadata.FileRecord) {
	t.Helper()
	if err := store.CreateFileWithOwner(context.Background(), fr, ownerPerm(fr)); err != nil {
		t.Fatalf("failed to create file %s: %v", fr.FileID, err)
	}
}

func TestFileCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fr := testFile("f1", "alice", time.Now())
	mustCreateFile(t, store, fr)

	got, err := store.GetFile(ctx, "f1")
	if err != nil {
		t.Fatalf("failed to get file: %v", err)
	}
	if got.OwnerID != "alice" || got.Filename != "doc.txt" || got.SizeBytes != 42 {
		t.Errorf("unexpected file record: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" {
		t.Errorf("tags not round-tripped: %v", got.Tags)
	}

	// The owner permission is created atomically with the file.
	perm, err := store.GetPermission(ctx, "f1", "alice")
	if err != nil {
		t.Fatalf("owner permission missing: %v", err)
	}
	if perm.Role != metadata.RoleOwner {
		t.Errorf("owner permission role = %s, want owner", perm.Role)
	}

	// Duplicate creation is rejected.
	dup := testFile("f1", "alice", time.Now())
	if err := store.CreateFileWithOwner(ctx, dup, ownerPerm(dup)); !errors.Is(err, metadata.ErrAlreadyExists) {
		t.Errorf("duplicate create error = %v, want ErrAlreadyExists", err)
	}

	got.Description = "updated"
	got.Tags = []string{"c"}
	if err := store.UpdateFile(ctx, got); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}
	got2, err := store.GetFile(ctx, "f1")
	if err != nil {
		t.Fatalf("failed to re-get file: %v", err)
	}
	if got2.Description != "updated" || len(got2.Tags) != 1 {
		t.Errorf("update not applied: %+v", got2)
	}

	if _, err := store.GetFile(ctx, "missing"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("get missing file error = %v, want ErrNotFound", err)
	}
}

func TestListFilesByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"f1", "f2", "f3"} {
		mustCreateFile(t, store, testFile(id, "alice", base.Add(time.Duration(i)*time.Minute)))
	}
	mustCreateFile(t, store, testFile("f4", "bob", base))

	files, err := store.ListFilesByOwner(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("failed to list files: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("listed %d files, want 3", len(files))
	}
	// Newest first.
	if files[0].FileID != "f3" || files[2].FileID != "f1" {
		t.Errorf("unexpected ordering: %s, %s, %s", files[0].FileID, files[1].FileID, files[2].FileID)
	}

	page, err := store.ListFilesByOwner(ctx, "alice", 2, 2)
	if err != nil {
		t.Fatalf("failed to list second page: %v", err)
	}
	if len(page) != 1 || page[0].FileID != "f1" {
		t.Errorf("unexpected second page: %+v", page)
	}
}

func TestDeleteFileCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fr := testFile("f1", "alice", time.Now())
	mustCreateFile(t, store, fr)

	if err := store.PutPermission(ctx, &metadata.PermissionRecord{
		FileID: "f1", PrincipalID: "bob", Role: metadata.RoleViewer, GrantedBy: "alice",
	}); err != nil {
		t.Fatalf("failed to put permission: %v", err)
	}
	if err := store.PutShare(ctx, &metadata.ShareToken{
		TokenID:   "tok.sig",
		FileID:    "f1",
		IssuedBy:  "alice",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("failed to put share: %v", err)
	}

	if err := store.DeleteFileCascade(ctx, "f1"); err != nil {
		t.Fatalf("cascade delete failed: %v", err)
	}

	if _, err := store.GetFile(ctx, "f1"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("file survived cascade: %v", err)
	}
	if _, err := store.GetPermission(ctx, "f1", "bob"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("permission survived cascade: %v", err)
	}
	if _, err := store.GetShare(ctx, "tok.sig"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("share token survived cascade: %v", err)
	}

	if err := store.DeleteFileCascade(ctx, "f1"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("second cascade delete error = %v, want ErrNotFound", err)
	}
}

func TestIncrementDownloadCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateFile(t, store, testFile("f1", "alice", time.Now()))

	for i := 0; i < 3; i++ {
		if err := store.IncrementDownloadCount(ctx, "f1"); err != nil {
			t.Fatalf("failed to increment download count: %v", err)
		}
	}

	fr, err := store.GetFile(ctx, "f1")
	if err != nil {
		t.Fatalf("failed to get file: %v", err)
	}
	if fr.DownloadCount != 3 {
		t.Errorf("download count = %d, want 3", fr.DownloadCount)
	}

	if err := store.IncrementDownloadCount(ctx, "missing"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("increment on missing file error = %v, want ErrNotFound", err)
	}
}

func putShare(t *testing.T, store *SQLiteStore, tokenID string, expiresAt time.Time, maxUses *int64) {
	t.Helper()
	mustCreateFile(t, store, testFile("file-"+tokenID, "alice", time.Now()))
	if err := store.PutShare(context.Background(), &metadata.ShareToken{
		TokenID:   tokenID,
		FileID:    "file-" + tokenID,
		IssuedBy:  "alice",
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}); err != nil {
		t.Fatalf("failed to put share %s: %v", tokenID, err)
	}
}

func TestConsumeShare(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	two := int64(2)
	putShare(t, store, "t1.sig", now.Add(time.Hour), &two)

	if err := store.ConsumeShare(ctx, "t1.sig", now, "10.0.0.1"); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	st, err := store.GetShare(ctx, "t1.sig")
	if err != nil {
		t.Fatalf("failed to get share: %v", err)
	}
	if st.UseCount != 1 {
		t.Errorf("use count = %d, want 1", st.UseCount)
	}
	if st.LastUsedIP == nil || *st.LastUsedIP != "10.0.0.1" {
		t.Errorf("last used ip not recorded: %v", st.LastUsedIP)
	}
	if st.LastUsedAt == nil {
		t.Error("last used at not recorded")
	}

	if err := store.ConsumeShare(ctx, "t1.sig", now, "10.0.0.2"); err != nil {
		t.Fatalf("second consume failed: %v", err)
	}
	// Usage bound reached.
	if err := store.ConsumeShare(ctx, "t1.sig", now, "10.0.0.3"); !errors.Is(err, metadata.ErrConflict) {
		t.Errorf("exhausted consume error = %v, want ErrConflict", err)
	}

	// Expired token.
	putShare(t, store, "t2.sig", now.Add(-time.Minute), nil)
	if err := store.ConsumeShare(ctx, "t2.sig", now, "10.0.0.1"); !errors.Is(err, metadata.ErrConflict) {
		t.Errorf("expired consume error = %v, want ErrConflict", err)
	}

	// Revoked token.
	putShare(t, store, "t3.sig", now.Add(time.Hour), nil)
	if err := store.RevokeShare(ctx, "t3.sig"); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	if err := store.ConsumeShare(ctx, "t3.sig", now, "10.0.0.1"); !errors.Is(err, metadata.ErrConflict) {
		t.Errorf("revoked consume error = %v, want ErrConflict", err)
	}

	// Missing token.
	if err := store.ConsumeShare(ctx, "missing", now, "10.0.0.1"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("missing consume error = %v, want ErrNotFound", err)
	}
}

func TestConsumeShareConcurrentSingleUse(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	one := int64(1)
	putShare(t, store, "t1.sig", now.Add(time.Hour), &one)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.ConsumeShare(context.Background(), "t1.sig", now, "10.0.0.1")
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, metadata.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected consume error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("%d consumers succeeded on a one-use token, want exactly 1", successes)
	}
	if conflicts != workers-1 {
		t.Errorf("%d consumers got a conflict, want %d", conflicts, workers-1)
	}

	st, err := store.GetShare(context.Background(), "t1.sig")
	if err != nil {
		t.Fatalf("failed to get share: %v", err)
	}
	if st.UseCount != 1 {
		t.Errorf("use count = %d, want 1", st.UseCount)
	}
}

func TestRevokeShareIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putShare(t, store, "t1.sig", time.Now().Add(time.Hour), nil)

	if err := store.RevokeShare(ctx, "t1.sig"); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	if err := store.RevokeShare(ctx, "t1.sig"); err != nil {
		t.Errorf("second revoke error = %v, want nil", err)
	}
	if err := store.RevokeShare(ctx, "missing"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("revoke missing error = %v, want ErrNotFound", err)
	}
}

func TestCleanupShares(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	putShare(t, store, "expired.sig", now.Add(-time.Hour), nil)
	putShare(t, store, "live.sig", now.Add(time.Hour), nil)
	putShare(t, store, "revoked.sig", now.Add(time.Hour), nil)
	if err := store.RevokeShare(ctx, "revoked.sig"); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}

	n, err := store.CleanupExpiredShares(ctx, now)
	if err != nil {
		t.Fatalf("expired cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired cleanup removed %d tokens, want 1", n)
	}
	if _, err := store.GetShare(ctx, "expired.sig"); !errors.Is(err, metadata.ErrNotFound) {
		t.Error("expired token survived cleanup")
	}

	n, err = store.CleanupRevokedShares(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("revoked cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("revoked cleanup removed %d tokens, want 1", n)
	}
	if _, err := store.GetShare(ctx, "live.sig"); err != nil {
		t.Errorf("live token removed by cleanup: %v", err)
	}
}

func TestPermissionUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateFile(t, store, testFile("f1", "alice", time.Now()))

	pr := &metadata.PermissionRecord{
		FileID: "f1", PrincipalID: "bob", Role: metadata.RoleViewer, GrantedBy: "alice",
	}
	if err := store.PutPermission(ctx, pr); err != nil {
		t.Fatalf("failed to put permission: %v", err)
	}

	// Re-grant with a higher role replaces the record.
	pr.Role = metadata.RoleEditor
	if err := store.PutPermission(ctx, pr); err != nil {
		t.Fatalf("failed to upsert permission: %v", err)
	}
	got, err := store.GetPermission(ctx, "f1", "bob")
	if err != nil {
		t.Fatalf("failed to get permission: %v", err)
	}
	if got.Role != metadata.RoleEditor {
		t.Errorf("role = %s, want editor", got.Role)
	}

	perms, err := store.ListPermissions(ctx, "f1")
	if err != nil {
		t.Fatalf("failed to list permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Errorf("listed %d permissions, want 2", len(perms))
	}

	if err := store.DeletePermission(ctx, "f1", "bob"); err != nil {
		t.Fatalf("failed to delete permission: %v", err)
	}
	if _, err := store.GetPermission(ctx, "f1", "bob"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("deleted permission still readable: %v", err)
	}
	if err := store.DeletePermission(ctx, "f1", "bob"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
