package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/domain/models"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
	"github.com/quantopian/pgcontents/internal/filetypes"
	"github.com/quantopian/pgcontents/internal/pathutil"
)

// fakeStore is a map-backed stand-in for the postgres repositories with the
// same error contracts.
type fakeStore struct {
	users  map[string]bool
	dirs   map[string]map[string]bool         // user -> db dirname
	files  map[string]map[string]*models.File // user -> api path
	cps    map[string]map[int64]*models.Checkpoint
	nextID int64
	clock  time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]bool),
		dirs:  make(map[string]map[string]bool),
		files: make(map[string]map[string]*models.File),
		cps:   make(map[string]map[int64]*models.Checkpoint),
		clock: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type fakeTxManager struct{}

func (fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type fakeUserRepo struct{ s *fakeStore }

func (f *fakeUserRepo) Ensure(_ context.Context, userID string) error {
	if !f.s.users[userID] {
		f.s.users[userID] = true
		f.s.dirs[userID] = make(map[string]bool)
		f.s.files[userID] = make(map[string]*models.File)
		f.s.cps[userID] = make(map[int64]*models.Checkpoint)
	}
	return nil
}

func (f *fakeUserRepo) Exists(_ context.Context, userID string) (bool, error) {
	return f.s.users[userID], nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]string, error) {
	var ids []string
	for id := range f.s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeUserRepo) Purge(_ context.Context, userID string) error {
	delete(f.s.files, userID)
	delete(f.s.dirs, userID)
	delete(f.s.users, userID)
	return nil
}

type fakeDirRepo struct{ s *fakeStore }

func (f *fakeDirRepo) Create(_ context.Context, userID, apiDirname string) error {
	db := pathutil.FromAPIDirname(apiDirname)
	if f.s.dirs[userID][db] {
		return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrDirectoryExists)
	}
	if db != "/" && !f.s.dirs[userID][pathutil.ParentDBDirname(db)] {
		return fmt.Errorf("parent of %s: %w", apiDirname, domain.ErrNoSuchDirectory)
	}
	f.s.dirs[userID][db] = true
	return nil
}

func (f *fakeDirRepo) Ensure(ctx context.Context, userID, apiDirname string) error {
	for _, prefix := range pathutil.PrefixDirnames(pathutil.FromAPIDirname(apiDirname)) {
		err := f.Create(ctx, userID, pathutil.ToAPIPath(prefix))
		if err != nil && !errors.Is(err, domain.ErrDirectoryExists) {
			return err
		}
	}
	return nil
}

func (f *fakeDirRepo) Exists(_ context.Context, userID, apiDirname string) (bool, error) {
	return f.s.dirs[userID][pathutil.FromAPIDirname(apiDirname)], nil
}

func (f *fakeDirRepo) Delete(_ context.Context, userID, apiDirname string) error {
	db := pathutil.FromAPIDirname(apiDirname)
	if !f.s.dirs[userID][db] {
		return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrNoSuchDirectory)
	}
	for d := range f.s.dirs[userID] {
		if d != "/" && pathutil.ParentDBDirname(d) == db {
			return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrDirectoryNotEmpty)
		}
	}
	for apiPath := range f.s.files[userID] {
		if dirname, _ := pathutil.SplitAPIFilepath(apiPath); dirname == db {
			return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrDirectoryNotEmpty)
		}
	}
	delete(f.s.dirs[userID], db)
	return nil
}

func (f *fakeDirRepo) Rename(_ context.Context, userID, oldAPIDirname, newAPIDirname string) error {
	if pathutil.IsRoot(oldAPIDirname) {
		return domain.ErrRenameRoot
	}
	oldDB := pathutil.FromAPIDirname(oldAPIDirname)
	newDB := pathutil.FromAPIDirname(newAPIDirname)
	if f.s.dirs[userID][newDB] {
		return fmt.Errorf("directory %s: %w", newAPIDirname, domain.ErrDirectoryExists)
	}
	if !f.s.dirs[userID][oldDB] {
		return fmt.Errorf("directory %s: %w", oldAPIDirname, domain.ErrNoSuchDirectory)
	}

	renamed := make(map[string]bool, len(f.s.dirs[userID]))
	for d := range f.s.dirs[userID] {
		if strings.HasPrefix(d, oldDB) {
			d = newDB + d[len(oldDB):]
		}
		renamed[d] = true
	}
	f.s.dirs[userID] = renamed

	// Files follow their directories, like the update cascade does
	moved := make(map[string]*models.File, len(f.s.files[userID]))
	for apiPath, file := range f.s.files[userID] {
		db := pathutil.FromAPIFilename(apiPath)
		if strings.HasPrefix(db, oldDB) {
			apiPath = pathutil.ToAPIPath(newDB + db[len(oldDB):])
			file.ParentName, file.Name = pathutil.SplitAPIFilepath(apiPath)
		}
		moved[apiPath] = file
	}
	f.s.files[userID] = moved
	return nil
}

func (f *fakeDirRepo) ListSubdirectories(_ context.Context, userID, apiDirname string) ([]models.Directory, error) {
	db := pathutil.FromAPIDirname(apiDirname)
	var names []string
	for d := range f.s.dirs[userID] {
		if d != "/" && pathutil.ParentDBDirname(d) == db {
			names = append(names, d)
		}
	}
	sort.Strings(names)
	dirs := make([]models.Directory, 0, len(names))
	for _, name := range names {
		parent := db
		dirs = append(dirs, models.Directory{UserID: userID, Name: name, ParentName: &parent})
	}
	return dirs, nil
}

type fakeFileRepo struct{ s *fakeStore }

func (f *fakeFileRepo) Get(_ context.Context, userID, apiPath string, includeContent bool) (*models.File, error) {
	file, ok := f.s.files[userID][apiPath]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
	}
	out := *file
	if !includeContent {
		out.Content = nil
	} else {
		out.Content = append([]byte(nil), file.Content...)
	}
	return &out, nil
}

func (f *fakeFileRepo) GetID(_ context.Context, userID, apiPath string) (int64, error) {
	file, ok := f.s.files[userID][apiPath]
	if !ok {
		return 0, fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
	}
	return file.ID, nil
}

func (f *fakeFileRepo) Exists(_ context.Context, userID, apiPath string) (bool, error) {
	_, ok := f.s.files[userID][apiPath]
	return ok, nil
}

func (f *fakeFileRepo) Save(_ context.Context, userID, apiPath string, content []byte) error {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)
	if !f.s.dirs[userID][dirname] {
		return fmt.Errorf("directory for %s: %w", apiPath, domain.ErrNoSuchDirectory)
	}
	if existing, ok := f.s.files[userID][apiPath]; ok {
		existing.Content = append([]byte(nil), content...)
		existing.CreatedAt = f.s.tick()
		return nil
	}
	f.s.nextID++
	f.s.files[userID][apiPath] = &models.File{
		ID:         f.s.nextID,
		Name:       name,
		UserID:     userID,
		ParentName: dirname,
		Content:    append([]byte(nil), content...),
		CreatedAt:  f.s.tick(),
	}
	return nil
}

func (f *fakeFileRepo) Delete(_ context.Context, userID, apiPath string) error {
	if _, ok := f.s.files[userID][apiPath]; !ok {
		return fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
	}
	delete(f.s.files[userID], apiPath)
	return nil
}

func (f *fakeFileRepo) Rename(_ context.Context, userID, oldAPIPath, newAPIPath string) error {
	if _, ok := f.s.files[userID][newAPIPath]; ok {
		return fmt.Errorf("file %s: %w", newAPIPath, domain.ErrFileExists)
	}
	file, ok := f.s.files[userID][oldAPIPath]
	if !ok {
		return fmt.Errorf("file %s: %w", oldAPIPath, domain.ErrNoSuchFile)
	}
	dirname, name := pathutil.SplitAPIFilepath(newAPIPath)
	if !f.s.dirs[userID][dirname] {
		return fmt.Errorf("directory for %s: %w", newAPIPath, domain.ErrNoSuchDirectory)
	}
	delete(f.s.files[userID], oldAPIPath)
	file.ParentName, file.Name = dirname, name
	file.CreatedAt = f.s.tick()
	f.s.files[userID][newAPIPath] = file
	return nil
}

func (f *fakeFileRepo) ListInDirectory(_ context.Context, userID, apiDirname string) ([]models.File, error) {
	db := pathutil.FromAPIDirname(apiDirname)
	var paths []string
	for apiPath := range f.s.files[userID] {
		if dirname, _ := pathutil.SplitAPIFilepath(apiPath); dirname == db {
			paths = append(paths, apiPath)
		}
	}
	sort.Strings(paths)
	files := make([]models.File, 0, len(paths))
	for _, p := range paths {
		out := *f.s.files[userID][p]
		out.Content = nil
		files = append(files, out)
	}
	return files, nil
}

func (f *fakeFileRepo) SelectIDs(_ context.Context, userID string) ([]int64, error) {
	var ids []int64
	for _, file := range f.s.files[userID] {
		ids = append(ids, file.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeFileRepo) ReencryptRow(_ context.Context, id int64, transform repositories.TransformFn) error {
	for _, files := range f.s.files {
		for _, file := range files {
			if file.ID != id {
				continue
			}
			rewritten, err := transform(file.Content)
			if err != nil {
				return err
			}
			file.Content = rewritten
			return nil
		}
	}
	return fmt.Errorf("file id %d: %w", id, domain.ErrNoSuchFile)
}

type fakeCheckpointRepo struct{ s *fakeStore }

func (f *fakeCheckpointRepo) Save(_ context.Context, userID, apiPath string, content []byte) (*models.Checkpoint, error) {
	f.s.nextID++
	cp := &models.Checkpoint{
		ID:           f.s.nextID,
		UserID:       userID,
		Path:         apiPath,
		Content:      append([]byte(nil), content...),
		LastModified: f.s.tick(),
	}
	if f.s.cps[userID] == nil {
		f.s.cps[userID] = make(map[int64]*models.Checkpoint)
	}
	f.s.cps[userID][cp.ID] = cp
	out := *cp
	out.Content = nil
	return &out, nil
}

func (f *fakeCheckpointRepo) Get(_ context.Context, userID, apiPath string, checkpointID int64) (*models.Checkpoint, error) {
	cp, ok := f.s.cps[userID][checkpointID]
	if !ok || cp.Path != apiPath {
		return nil, fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, domain.ErrNoSuchCheckpoint)
	}
	out := *cp
	out.Content = append([]byte(nil), cp.Content...)
	return &out, nil
}

func (f *fakeCheckpointRepo) List(_ context.Context, userID, apiPath string) ([]models.Checkpoint, error) {
	var cps []models.Checkpoint
	for _, cp := range f.s.cps[userID] {
		if cp.Path == apiPath {
			out := *cp
			out.Content = nil
			cps = append(cps, out)
		}
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].LastModified.After(cps[j].LastModified) })
	return cps, nil
}

func (f *fakeCheckpointRepo) LatestPerPath(_ context.Context, userID string) ([]models.Checkpoint, error) {
	latest := make(map[string]*models.Checkpoint)
	for _, cp := range f.s.cps[userID] {
		if cur, ok := latest[cp.Path]; !ok || cp.LastModified.After(cur.LastModified) {
			latest[cp.Path] = cp
		}
	}
	var cps []models.Checkpoint
	for _, cp := range latest {
		out := *cp
		out.Content = nil
		cps = append(cps, out)
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].Path < cps[j].Path })
	return cps, nil
}

func (f *fakeCheckpointRepo) Delete(_ context.Context, userID, apiPath string, checkpointID int64) error {
	cp, ok := f.s.cps[userID][checkpointID]
	if !ok || cp.Path != apiPath {
		return fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, domain.ErrNoSuchCheckpoint)
	}
	delete(f.s.cps[userID], checkpointID)
	return nil
}

func (f *fakeCheckpointRepo) DeleteAllForPath(_ context.Context, userID, apiPath string) error {
	for id, cp := range f.s.cps[userID] {
		if cp.Path == apiPath {
			delete(f.s.cps[userID], id)
		}
	}
	return nil
}

func (f *fakeCheckpointRepo) PurgeUser(_ context.Context, userID string) error {
	delete(f.s.cps, userID)
	return nil
}

func (f *fakeCheckpointRepo) MoveSingle(_ context.Context, userID, srcAPIPath, destAPIPath string, checkpointID int64) error {
	cp, ok := f.s.cps[userID][checkpointID]
	if !ok || cp.Path != srcAPIPath {
		return fmt.Errorf("checkpoint %d for %s: %w", checkpointID, srcAPIPath, domain.ErrNoSuchCheckpoint)
	}
	cp.Path = destAPIPath
	return nil
}

func (f *fakeCheckpointRepo) MoveAll(_ context.Context, userID, srcAPIPath, destAPIPath string) error {
	for _, cp := range f.s.cps[userID] {
		if cp.Path == srcAPIPath {
			cp.Path = destAPIPath
		} else if strings.HasPrefix(cp.Path, srcAPIPath+"/") {
			cp.Path = destAPIPath + cp.Path[len(srcAPIPath):]
		}
	}
	return nil
}

func (f *fakeCheckpointRepo) SelectIDs(_ context.Context, userID string) ([]int64, error) {
	var ids []int64
	for id := range f.s.cps[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeCheckpointRepo) ReencryptRow(_ context.Context, id int64, transform repositories.TransformFn) error {
	for _, cps := range f.s.cps {
		if cp, ok := cps[id]; ok {
			rewritten, err := transform(cp.Content)
			if err != nil {
				return err
			}
			cp.Content = rewritten
			return nil
		}
	}
	return fmt.Errorf("checkpoint id %d: %w", id, domain.ErrNoSuchCheckpoint)
}

type testEnv struct {
	store       *fakeStore
	contents    *ContentsService
	checkpoints *CheckpointsService
	reencrypt   *ReencryptService
}

func newTestEnv(t *testing.T, factory crypto.Factory, maxFileSize int64) *testEnv {
	t.Helper()
	return newTestEnvWith(t, newFakeStore(), factory, maxFileSize)
}

// newTestEnvWith builds services against an existing store, so a test can
// reopen the same data under a different encryption key.
func newTestEnvWith(t *testing.T, store *fakeStore, factory crypto.Factory, maxFileSize int64) *testEnv {
	t.Helper()

	users := &fakeUserRepo{store}
	dirs := &fakeDirRepo{store}
	files := &fakeFileRepo{store}
	cps := &fakeCheckpointRepo{store}
	tx := fakeTxManager{}

	registry, err := filetypes.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		store:       store,
		contents:    NewContentsService(users, dirs, files, cps, tx, registry, factory, maxFileSize, logger),
		checkpoints: NewCheckpointsService(files, dirs, cps, tx, factory, maxFileSize, logger),
		reencrypt:   NewReencryptService(users, files, cps, tx, logger),
	}
}

func TestContentsService_SaveAndGetFile(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	saved, err := env.contents.Save(ctx, "alice", "notes.txt", &SaveRequest{
		Type:    models.TypeFile,
		Format:  models.FormatText,
		Content: "hello world",
	})
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if saved.Content != nil {
		t.Errorf("Save() returned content, want none")
	}
	if saved.Type != models.TypeFile {
		t.Errorf("Save() type = %q, want %q", saved.Type, models.TypeFile)
	}

	got, err := env.contents.Get(ctx, "alice", "notes.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "hello world" {
		t.Errorf("Get() content = %v, want %q", got.Content, "hello world")
	}
	if got.Format == nil || *got.Format != models.FormatText {
		t.Errorf("Get() format = %v, want %q", got.Format, models.FormatText)
	}
	if got.Mimetype == nil || *got.Mimetype != "text/plain" {
		t.Errorf("Get() mimetype = %v, want text/plain", got.Mimetype)
	}
	if got.Name != "notes.txt" || got.Path != "notes.txt" {
		t.Errorf("Get() name/path = %q/%q, want notes.txt/notes.txt", got.Name, got.Path)
	}
}

func TestContentsService_SaveAndGetNotebook(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	nb := map[string]any{"cells": []any{}, "nbformat": float64(4)}
	if _, err := env.contents.Save(ctx, "alice", "analysis.ipynb", &SaveRequest{
		Type:    models.TypeNotebook,
		Content: nb,
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := env.contents.Get(ctx, "alice", "analysis.ipynb", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Type != models.TypeNotebook {
		t.Errorf("Get() type = %q, want %q", got.Type, models.TypeNotebook)
	}
	content, ok := got.Content.(map[string]any)
	if !ok {
		t.Fatalf("Get() content has type %T, want map", got.Content)
	}
	if content["nbformat"] != float64(4) {
		t.Errorf("Get() nbformat = %v, want 4", content["nbformat"])
	}
}

func TestContentsService_SaveBase64RoundTrip(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	// 0xFF 0xFE is not valid UTF-8, so retrieval must fall back to base64
	if _, err := env.contents.Save(ctx, "alice", "blob.bin", &SaveRequest{
		Type:    models.TypeFile,
		Format:  models.FormatBase64,
		Content: "//4=",
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := env.contents.Get(ctx, "alice", "blob.bin", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Format == nil || *got.Format != models.FormatBase64 {
		t.Errorf("Get() format = %v, want %q", got.Format, models.FormatBase64)
	}
	if got.Content != "//4=" {
		t.Errorf("Get() content = %v, want //4=", got.Content)
	}
}

func TestContentsService_SaveMissingDirectory(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	_, err := env.contents.Save(ctx, "alice", "missing/notes.txt", &SaveRequest{
		Type:    models.TypeFile,
		Format:  models.FormatText,
		Content: "x",
	})
	if !errors.Is(err, domain.ErrNoSuchDirectory) {
		t.Errorf("Save() error = %v, want ErrNoSuchDirectory", err)
	}
}

func TestContentsService_SaveTooLarge(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 4)
	ctx := context.Background()

	_, err := env.contents.Save(ctx, "alice", "big.txt", &SaveRequest{
		Type:    models.TypeFile,
		Format:  models.FormatText,
		Content: "more than four bytes",
	})
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Errorf("Save() error = %v, want ErrFileTooLarge", err)
	}
}

func TestContentsService_GetDirectory(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveDir(t, env, "alice", "work")
	mustSaveDir(t, env, "alice", "work/data")
	mustSaveFile(t, env, "alice", "work/b.txt", "b")
	mustSaveFile(t, env, "alice", "work/a.txt", "a")

	got, err := env.contents.Get(ctx, "alice", "work", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Type != models.TypeDirectory {
		t.Fatalf("Get() type = %q, want directory", got.Type)
	}

	children, ok := got.Content.([]*models.Content)
	if !ok {
		t.Fatalf("Get() content has type %T, want []*models.Content", got.Content)
	}

	var paths []string
	for _, child := range children {
		paths = append(paths, child.Path)
	}
	want := []string{"work/data", "work/a.txt", "work/b.txt"}
	if len(paths) != len(want) {
		t.Fatalf("Get() children = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("Get() child[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestContentsService_GetDirectoryMissing(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	_, err := env.contents.Get(ctx, "alice", "nope", true, models.TypeDirectory, "")
	if !errors.Is(err, domain.ErrNoSuchDirectory) {
		t.Errorf("Get() error = %v, want ErrNoSuchDirectory", err)
	}
}

func TestContentsService_GetRootOnFreshUser(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	got, err := env.contents.Get(ctx, "newcomer", "", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	children, ok := got.Content.([]*models.Content)
	if !ok {
		t.Fatalf("Get() content has type %T, want []*models.Content", got.Content)
	}
	if len(children) != 0 {
		t.Errorf("Get() children = %d, want empty root", len(children))
	}
}

func TestContentsService_GetPathOutsideRoot(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	_, err := env.contents.Get(ctx, "alice", "../escape", true, "", "")
	if !errors.Is(err, domain.ErrPathOutsideRoot) {
		t.Errorf("Get() error = %v, want ErrPathOutsideRoot", err)
	}
}

func TestContentsService_RenameFileMovesCheckpoints(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "old.txt", "v1")
	if _, err := env.checkpoints.Create(ctx, "alice", "old.txt"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	renamed, err := env.contents.Rename(ctx, "alice", "old.txt", "new.txt")
	if err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if renamed.Path != "new.txt" {
		t.Errorf("Rename() path = %q, want new.txt", renamed.Path)
	}

	cps, err := env.checkpoints.List(ctx, "alice", "new.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cps) != 1 {
		t.Fatalf("List() returned %d checkpoints at new path, want 1", len(cps))
	}

	old, err := env.checkpoints.List(ctx, "alice", "old.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("List() returned %d checkpoints at old path, want 0", len(old))
	}
}

func TestContentsService_RenameDirectoryMovesSubtree(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveDir(t, env, "alice", "proj")
	mustSaveDir(t, env, "alice", "proj/sub")
	mustSaveFile(t, env, "alice", "proj/sub/deep.txt", "deep")
	if _, err := env.checkpoints.Create(ctx, "alice", "proj/sub/deep.txt"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if _, err := env.contents.Rename(ctx, "alice", "proj", "archive"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	got, err := env.contents.Get(ctx, "alice", "archive/sub/deep.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() after rename failed: %v", err)
	}
	if got.Content != "deep" {
		t.Errorf("Get() content = %v, want deep", got.Content)
	}

	if exists, _ := env.contents.DirExists(ctx, "alice", "proj"); exists {
		t.Errorf("DirExists(proj) = true after rename, want false")
	}

	cps, err := env.checkpoints.List(ctx, "alice", "archive/sub/deep.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cps) != 1 {
		t.Errorf("List() returned %d checkpoints at moved path, want 1", len(cps))
	}
}

func TestContentsService_RenameRoot(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	_, err := env.contents.Rename(ctx, "alice", "", "elsewhere")
	if !errors.Is(err, domain.ErrRenameRoot) {
		t.Errorf("Rename() error = %v, want ErrRenameRoot", err)
	}
}

func TestContentsService_RenameOntoExistingFile(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "a.txt", "a")
	mustSaveFile(t, env, "alice", "b.txt", "b")

	_, err := env.contents.Rename(ctx, "alice", "a.txt", "b.txt")
	if !errors.Is(err, domain.ErrFileExists) {
		t.Errorf("Rename() error = %v, want ErrFileExists", err)
	}
}

func TestContentsService_Delete(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveDir(t, env, "alice", "dir")
	mustSaveFile(t, env, "alice", "dir/f.txt", "x")

	if err := env.contents.Delete(ctx, "alice", "dir"); !errors.Is(err, domain.ErrDirectoryNotEmpty) {
		t.Errorf("Delete(dir) error = %v, want ErrDirectoryNotEmpty", err)
	}
	if err := env.contents.Delete(ctx, "alice", "dir/f.txt"); err != nil {
		t.Fatalf("Delete(file) failed: %v", err)
	}
	if err := env.contents.Delete(ctx, "alice", "dir"); err != nil {
		t.Fatalf("Delete(empty dir) failed: %v", err)
	}
	if err := env.contents.Delete(ctx, "alice", "dir"); !errors.Is(err, domain.ErrNoSuchDirectory) {
		t.Errorf("Delete(missing) error = %v, want ErrNoSuchDirectory", err)
	}
	if err := env.contents.Delete(ctx, "alice", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Delete(root) error = %v, want ErrValidation", err)
	}
}

func TestContentsService_DeleteKeepsCheckpoints(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "keep.txt", "v1")
	cp, err := env.checkpoints.Create(ctx, "alice", "keep.txt")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := env.contents.Delete(ctx, "alice", "keep.txt"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	// The snapshot log is independent of the file's lifecycle
	cps, err := env.checkpoints.List(ctx, "alice", "keep.txt")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cps) != 1 || cps[0].ID != cp.ID {
		t.Fatalf("List() after delete = %v, want the original checkpoint", cps)
	}

	if err := env.checkpoints.Restore(ctx, "alice", "keep.txt", cp.ID); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	got, err := env.contents.Get(ctx, "alice", "keep.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() after restore failed: %v", err)
	}
	if got.Content != "v1" {
		t.Errorf("Get() content = %v, want v1", got.Content)
	}
}

func TestContentsService_PurgeUser(t *testing.T) {
	env := newTestEnv(t, crypto.NoPasswordFactory(), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "f.txt", "x")
	if _, err := env.checkpoints.Create(ctx, "alice", "f.txt"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := env.contents.PurgeUser(ctx, "alice"); err != nil {
		t.Fatalf("PurgeUser() failed: %v", err)
	}

	users, err := env.contents.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("ListUsers() = %v, want empty", users)
	}
	if len(env.store.cps["alice"]) != 0 {
		t.Errorf("checkpoints remain after purge: %d", len(env.store.cps["alice"]))
	}
}

func TestContentsService_EncryptedStorage(t *testing.T) {
	env := newTestEnv(t, crypto.SinglePasswordFactory("secret"), 0)
	ctx := context.Background()

	mustSaveFile(t, env, "alice", "private.txt", "sensitive data")

	// Ciphertext at rest must not contain the plaintext
	raw := env.store.files["alice"]["private.txt"].Content
	if strings.Contains(string(raw), "sensitive data") {
		t.Errorf("stored content contains plaintext")
	}

	got, err := env.contents.Get(ctx, "alice", "private.txt", true, "", "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "sensitive data" {
		t.Errorf("Get() content = %v, want decrypted plaintext", got.Content)
	}
}

func TestSaveRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SaveRequest
		wantErr bool
	}{
		{
			name:    "valid text file",
			req:     SaveRequest{Type: models.TypeFile, Format: models.FormatText, Content: "x"},
			wantErr: false,
		},
		{
			name:    "valid notebook",
			req:     SaveRequest{Type: models.TypeNotebook, Content: map[string]any{}},
			wantErr: false,
		},
		{
			name:    "valid directory without content",
			req:     SaveRequest{Type: models.TypeDirectory},
			wantErr: false,
		},
		{
			name:    "missing type",
			req:     SaveRequest{Content: "x"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			req:     SaveRequest{Type: "symlink", Content: "x"},
			wantErr: true,
		},
		{
			name:    "file without format",
			req:     SaveRequest{Type: models.TypeFile, Content: "x"},
			wantErr: true,
		},
		{
			name:    "file without content",
			req:     SaveRequest{Type: models.TypeFile, Format: models.FormatText},
			wantErr: true,
		},
		{
			name:    "notebook without content",
			req:     SaveRequest{Type: models.TypeNotebook},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func mustSaveFile(t *testing.T, env *testEnv, userID, apiPath, content string) {
	t.Helper()
	_, err := env.contents.Save(context.Background(), userID, apiPath, &SaveRequest{
		Type:    models.TypeFile,
		Format:  models.FormatText,
		Content: content,
	})
	if err != nil {
		t.Fatalf("Save(%s) failed: %v", apiPath, err)
	}
}

func mustSaveDir(t *testing.T, env *testEnv, userID, apiPath string) {
	t.Helper()
	_, err := env.contents.Save(context.Background(), userID, apiPath, &SaveRequest{
		Type: models.TypeDirectory,
	})
	if err != nil {
		t.Fatalf("Save(%s) failed: %v", apiPath, err)
	}
}
