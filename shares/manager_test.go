package shares

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metadata/sqlite"
)

// fakeClock is a settable time source for expiry and skew tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func setupManager(t *testing.T) (*Manager, metadata.Store, *fakeClock) {
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
			t.Fatalf("failed to grant %s: %v", principal, err)
		}
	}

	evaluator := authz.NewEvaluator(store, zap.NewNop())
	manager, err := NewManager(store, evaluator, "test-secret", 24*time.Hour, 30*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	clock := &fakeClock{t: time.Now().UTC()}
	manager.SetClock(clock.Now)

	return manager, store, clock
}

func TestIssueValidation(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	if _, err := manager.Issue(ctx, "alice", "f1", 0, nil, ""); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("zero ttl error = %v, want ErrInvalidTTL", err)
	}
	if _, err := manager.Issue(ctx, "alice", "f1", 48*time.Hour, nil, ""); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("excessive ttl error = %v, want ErrInvalidTTL", err)
	}

	zero := int64(0)
	if _, err := manager.Issue(ctx, "alice", "f1", time.Hour, &zero, ""); !errors.Is(err, ErrInvalidMaxUses) {
		t.Errorf("zero max uses error = %v, want ErrInvalidMaxUses", err)
	}

	// Viewers cannot mint tokens.
	if _, err := manager.Issue(ctx, "bob", "f1", time.Hour, nil, ""); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("viewer issue error = %v, want ErrForbidden", err)
	}
	// A stranger sees the same error as for a nonexistent file.
	if _, err := manager.Issue(ctx, "mallory", "f1", time.Hour, nil, ""); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("stranger issue error = %v, want ErrNotFound", err)
	}
}

func TestIssueAndResolve(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "carol", "f1", time.Hour, nil, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	if st.FileID != "f1" || st.IssuedBy != "carol" {
		t.Errorf("unexpected token record: %+v", st)
	}

	resolved, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1")
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if resolved.FileID != "f1" {
		t.Errorf("resolved file id = %s, want f1", resolved.FileID)
	}
	if resolved.UseCount != 1 {
		t.Errorf("use count = %d, want 1", resolved.UseCount)
	}

	// Unlimited tokens keep resolving.
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.2"); err != nil {
		t.Errorf("second resolve failed: %v", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	manager, _, _ := setupManager(t)

	if _, err := manager.Resolve(context.Background(), "bogus.token", "", "10.0.0.1"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token error = %v, want ErrTokenNotFound", err)
	}
}

func TestResolveBadSignature(t *testing.T) {
	manager, store, clock := setupManager(t)
	ctx := context.Background()

	// A stored token whose signature does not verify against its file must be
	// rejected even though the record exists.
	st := &metadata.ShareToken{
		TokenID:   "forged.c2lnbmF0dXJl",
		FileID:    "f1",
		IssuedBy:  "alice",
		IssuedAt:  clock.Now(),
		ExpiresAt: clock.Now().Add(time.Hour),
	}
	if err := store.PutShare(ctx, st); err != nil {
		t.Fatalf("failed to put forged token: %v", err)
	}

	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("forged token error = %v, want ErrTokenInvalid", err)
	}
}

func TestResolveExhausted(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	one := int64(1)
	st, err := manager.Issue(ctx, "alice", "f1", time.Hour, &one, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenExhausted) {
		t.Errorf("second resolve error = %v, want ErrTokenExhausted", err)
	}
}

func TestResolveExpired(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "alice", "f1", time.Hour, nil, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	// Exactly at the expiry instant the token is already expired, and is
	// reported as such rather than as exhausted.
	clock.Set(st.ExpiresAt)
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("boundary resolve error = %v, want ErrTokenExpired", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired resolve error = %v, want ErrTokenExpired", err)
	}
}

func TestResolveRevoked(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "alice", "f1", time.Hour, nil, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	if err := manager.Revoke(ctx, "alice", st.TokenID); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}

	// Revocation wins even though the expiry is still in the future.
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("revoked resolve error = %v, want ErrTokenRevoked", err)
	}
}

func TestResolvePassword(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "alice", "f1", time.Hour, nil, "hunter2")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("missing password error = %v, want ErrBadPassword", err)
	}
	if _, err := manager.Resolve(ctx, st.TokenID, "wrong", "10.0.0.1"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("wrong password error = %v, want ErrBadPassword", err)
	}
	if _, err := manager.Resolve(ctx, st.TokenID, "hunter2", "10.0.0.1"); err != nil {
		t.Errorf("correct password resolve failed: %v", err)
	}
}

func TestResolveClockRegression(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "alice", "f1", time.Hour, nil, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	// A clock more than the skew tolerance behind the issue time fails closed.
	clock.Set(st.IssuedAt.Add(-time.Minute))

	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("regressed clock resolve error = %v, want ErrTokenInvalid", err)
	}

	// Within the tolerance resolution still works.
	clock.Set(st.IssuedAt.Add(-10 * time.Second))
	if _, err := manager.Resolve(ctx, st.TokenID, "", "10.0.0.1"); err != nil {
		t.Errorf("in-tolerance resolve failed: %v", err)
	}
}

func TestRevokeAuthorization(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	st, err := manager.Issue(ctx, "carol", "f1", time.Hour, nil, "")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	// A viewer cannot revoke a token they did not issue.
	if err := manager.Revoke(ctx, "bob", st.TokenID); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("viewer revoke error = %v, want ErrForbidden", err)
	}

	// The file owner can revoke any token on the file.
	if err := manager.Revoke(ctx, "alice", st.TokenID); err != nil {
		t.Errorf("owner revoke failed: %v", err)
	}

	// Revoking an already revoked token stays successful.
	if err := manager.Revoke(ctx, "carol", st.TokenID); err != nil {
		t.Errorf("issuer re-revoke failed: %v", err)
	}

	if err := manager.Revoke(ctx, "alice", "missing.token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("revoke missing error = %v, want ErrTokenNotFound", err)
	}
}
