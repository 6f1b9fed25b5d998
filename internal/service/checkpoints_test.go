package service

import (
	"context"
	"errors"
	"testing"

	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain"
)

func TestCheckpointsService_CreateAndList(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "nb.txt", "v1")
	first, err := env.checkpoints.Create(ctx, "alice", "nb.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if first.Content != nil {
		t.Errorf("Create() returned content, want none")
	}

	mustSaveFile(t, env, "alice", "nb.txt", "v2")
	second, err := env.checkpoints.Create(ctx, "alice", "nb.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	cps, err := env.checkpoints.List(ctx, "alice", "nb.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("List() returned %d checkpoints, want 2", len(cps))
	}
	if cps[0].ID != second.ID || cps[1].ID != first.ID {
		t.Errorf("List() order = [%d %d], want newest first [%d %d]",
			cps[0].ID, cps[1].ID, second.ID, first.ID)
	}
}

func TestCheckpointsService_CreateMissingFile(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	if err := env.contents.EnsureUser(ctx, "alice"); err != nil {
		t.Fatalf("EnsureUser() failed: %v", err)
	}
	_, err := env.checkpoints.Create(ctx, "alice", "ghost.txt")
	if !errors.Is(err, domain.ErrNoSuchFile) {
		t.Errorf("Create() error = %v, want ErrNoSuchFile", err)
	}
}

func TestCheckpointsService_Restore(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "original")
	cp, err := env.checkpoints.Create(ctx, "alice", "doc.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	mustSaveFile(t, env, "alice", "doc.txt", "overwritten")

	if err := env.checkpoints.Restore(ctx, "alice", "doc.txt", cp.ID); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	got, err := env.contents.Get(ctx, "alice", "doc.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "original" {
		t.Errorf("Get() content = %v, want original", got.Content)
	}
}

func TestCheckpointsService_RestoreRecreatesDirectories(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveDir(t, env, "alice", "proj")
	mustSaveFile(t, env, "alice", "proj/doc.txt", "content")
	cp, err := env.checkpoints.Create(ctx, "alice", "proj/doc.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := env.contents.Delete(ctx, "alice", "proj/doc.txt"); err != nil {
		t.Fatalf("Delete(file) failed: %v", err)
	}
	if err := env.contents.Delete(ctx, "alice", "proj"); err != nil {
		t.Fatalf("Delete(dir) failed: %v", err)
	}

	if err := env.checkpoints.Restore(ctx, "alice", "proj/doc.txt", cp.ID); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	got, err := env.contents.Get(ctx, "alice", "proj/doc.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() after restore failed: %v", err)
	}
	if got.Content != "content" {
		t.Errorf("Get() content = %v, want content", got.Content)
	}
	if exists, _ := env.contents.DirExists(ctx, "alice", "proj"); !exists {
		t.Errorf("DirExists(proj) = false after restore, want true")
	}
}

func TestCheckpointsService_RestoreMissing(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "x")
	err := env.checkpoints.Restore(ctx, "alice", "doc.txt", 9999)
	if !errors.Is(err, domain.ErrNoSuchCheckpoint) {
		t.Errorf("Restore() error = %v, want ErrNoSuchCheckpoint", err)
	}
}

func TestCheckpointsService_Delete(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "x")
	cp, err := env.checkpoints.Create(ctx, "alice", "doc.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := env.checkpoints.Delete(ctx, "alice", "doc.txt", cp.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := env.checkpoints.Delete(ctx, "alice", "doc.txt", cp.ID); !errors.Is(err, domain.ErrNoSuchCheckpoint) {
		t.Errorf("Delete() error = %v, want ErrNoSuchCheckpoint", err)
	}
}

func TestCheckpointsService_DeleteAllForPath(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "v1")
	for i := 0; i < 3; i++ {
		if _, err := env.checkpoints.Create(ctx, "alice", "doc.txt"); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	if err := env.checkpoints.DeleteAllForPath(ctx, "alice", "doc.txt"); err != nil {
		t.Fatalf("DeleteAllForPath() failed: %v", err)
	}
	cps, err := env.checkpoints.List(ctx, "alice", "doc.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("List() returned %d checkpoints, want 0", len(cps))
	}
}

func TestCheckpointsService_LatestPerPath(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "a.txt", "a1")
	mustSaveFile(t, env, "alice", "b.txt", "b1")
	if _, err := env.checkpoints.Create(ctx, "alice", "a.txt"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := env.checkpoints.Create(ctx, "alice", "b.txt"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	latestA, err := env.checkpoints.Create(ctx, "alice", "a.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	latest, err := env.checkpoints.LatestPerPath(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestPerPath() failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestPerPath() returned %d entries, want 2", len(latest))
	}
	if latest[0].Path != "a.txt" || latest[0].ID != latestA.ID {
		t.Errorf("LatestPerPath()[0] = %s/%d, want a.txt/%d", latest[0].Path, latest[0].ID, latestA.ID)
	}
	if latest[1].Path != "b.txt" {
		t.Errorf("LatestPerPath()[1].Path = %s, want b.txt", latest[1].Path)
	}
}

func TestCheckpointsService_GetContent(t *testing.T) {
	env := newTestEnv(t, crypto.SinglePasswordFactory("secret"), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "snapshot me")
	cp, err := env.checkpoints.Create(ctx, "alice", "doc.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	plaintext, err := env.checkpoints.GetContent(ctx, "alice", "doc.txt", cp.ID)
	if err != nil {
		t.Fatalf("GetContent() failed: %v", err)
	}
	if string(plaintext) != "snapshot me" {
		t.Errorf("GetContent() = %q, want %q", plaintext, "snapshot me")
	}
}

func TestCheckpointsService_EncryptedAtRest(t *testing.T) {
	env := newTestEnv(t, crypto.SinglePasswordFactory("secret"), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "doc.txt", "classified")
	cp, err := env.checkpoints.Create(ctx, "alice", "doc.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	raw := env.store.cps["alice"][cp.ID].Content
	if string(raw) == "classified" {
		t.Errorf("checkpoint stored in plaintext")
	}

	mustSaveFile(t, env, "alice", "doc.txt", "rewritten")
	if err := env.checkpoints.Restore(ctx, "alice", "doc.txt", cp.ID); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	got, err := env.contents.Get(ctx, "alice", "doc.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "classified" {
		t.Errorf("Get() content = %v, want classified", got.Content)
	}
}
