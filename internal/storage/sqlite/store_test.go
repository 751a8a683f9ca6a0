package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "flat.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedFile(t *testing.T, s *Store, userUUID string, file *core.CloudStorageFile) {
	t.Helper()
	if err := s.CreateFile(context.Background(), userUUID, file); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	_ = first.Close()

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()

	var version int
	if err := second.sqlDB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != 1 {
		t.Errorf("user_version = %d, want 1", version)
	}
}

func TestMigrate_AppliesOnlyNewerFiles(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":  {Data: []byte("ignored")},
	}
	if err := migrate(ctx, sqlDB, fsys); err != nil {
		t.Fatalf("migrate() error = %v", err)
	}

	// Re-running 0001 or 0002 would fail on the existing tables.
	fsys["0010_c.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE c (id INTEGER);")}
	if err := migrate(ctx, sqlDB, fsys); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}

	var version int
	if err := sqlDB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != 10 {
		t.Errorf("user_version = %d, want 10", version)
	}
}

func TestMigrate_FailedScriptKeepsVersion(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"0001_a.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"0002_bad.sql": {Data: []byte("CREATE TABLE nope (;")},
	}
	if err := migrate(ctx, sqlDB, fsys); err == nil {
		t.Fatal("expected error for broken script")
	}
	var version int
	if err := sqlDB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != 1 {
		t.Errorf("user_version = %d, want 1", version)
	}
}

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"0001_init.sql", 1, false},
		{"0042_add_index.sql", 42, false},
		{"init.sql", 0, true},
		{"abc_init.sql", 0, true},
		{"0000_zero.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := migrationVersion(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("migrationVersion(%q) = %d, %v", tt.name, got, err)
		}
	}

	dup := fstest.MapFS{"01_a.sql": {}, "0001_b.sql": {}}
	if _, err := listMigrations(dup); err == nil {
		t.Error("expected error for duplicate versions")
	}
}

func TestHasUserFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner, other := core.NewUUIDv4(), core.NewUUIDv4()
	fileUUID := core.NewUUIDv4()
	seedFile(t, s, owner, &core.CloudStorageFile{FileUUID: fileUUID, FileName: "a.pdf", FileURL: "https://cdn/a.pdf"})

	ok, err := s.HasUserFile(ctx, owner, fileUUID)
	if err != nil || !ok {
		t.Fatalf("HasUserFile(owner) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.HasUserFile(ctx, other, fileUUID)
	if err != nil || ok {
		t.Fatalf("HasUserFile(other) = %v, %v; want false, nil", ok, err)
	}
}

func TestFindFile(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	fileUUID := core.NewUUIDv4()
	seedFile(t, s, core.NewUUIDv4(), &core.CloudStorageFile{
		FileUUID:    fileUUID,
		FileName:    "deck.pptx",
		FileSize:    2048,
		FileURL:     "https://cdn/deck.pptx",
		ConvertStep: core.ConvertStepConverting,
		TaskUUID:    "task-1",
		Region:      core.RegionUSSV,
	})

	got, err := s.FindFile(context.Background(), fileUUID)
	if err != nil {
		t.Fatalf("FindFile() error = %v", err)
	}
	want := &core.CloudStorageFile{
		FileUUID:    fileUUID,
		FileName:    "deck.pptx",
		FileSize:    2048,
		FileURL:     "https://cdn/deck.pptx",
		ConvertStep: core.ConvertStepConverting,
		TaskUUID:    "task-1",
		Region:      core.RegionUSSV,
		CreatedAt:   fixed,
		UpdatedAt:   fixed,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestFindFile_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FindFile(context.Background(), core.NewUUIDv4())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindFile() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateConvertStep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fileUUID := core.NewUUIDv4()
	seedFile(t, s, core.NewUUIDv4(), &core.CloudStorageFile{FileUUID: fileUUID, FileName: "a.pdf", FileURL: "https://cdn/a.pdf"})

	if err := s.UpdateConvertStep(ctx, fileUUID, core.ConvertStepDone); err != nil {
		t.Fatalf("UpdateConvertStep() error = %v", err)
	}
	got, err := s.FindFile(ctx, fileUUID)
	if err != nil {
		t.Fatalf("FindFile() error = %v", err)
	}
	if got.ConvertStep != core.ConvertStepDone {
		t.Errorf("ConvertStep = %q, want %q", got.ConvertStep, core.ConvertStepDone)
	}

	if err := s.UpdateConvertStep(ctx, core.NewUUIDv4(), core.ConvertStepDone); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateConvertStep(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMarkConvertingAndListStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	old, recent := core.NewUUIDv4(), core.NewUUIDv4()
	s.now = func() time.Time { return base }
	seedFile(t, s, core.NewUUIDv4(), &core.CloudStorageFile{FileUUID: old, FileName: "old.pdf", FileURL: "https://cdn/old.pdf"})
	if err := s.MarkConverting(ctx, old, "task-old", "tok", core.RegionSG); err != nil {
		t.Fatalf("MarkConverting(old) error = %v", err)
	}

	s.now = func() time.Time { return base.Add(time.Hour) }
	seedFile(t, s, core.NewUUIDv4(), &core.CloudStorageFile{FileUUID: recent, FileName: "new.pdf", FileURL: "https://cdn/new.pdf"})
	if err := s.MarkConverting(ctx, recent, "task-new", "tok", core.RegionSG); err != nil {
		t.Fatalf("MarkConverting(recent) error = %v", err)
	}

	files, err := s.ListStaleConverting(ctx, base.Add(30*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStaleConverting() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("ListStaleConverting() returned %d files, want 1", len(files))
	}
	if files[0].FileUUID != old || files[0].TaskUUID != "task-old" || files[0].Region != core.RegionSG {
		t.Errorf("unexpected stale file: %+v", files[0])
	}
}

func TestUpsertExternalUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	identity := core.ExternalIdentity{
		Source:  core.LoginSourceGithub,
		UnionID: "12345",
		Name:    "octocat",
		Avatar:  "https://avatars/octocat.png",
	}

	first, err := s.UpsertExternalUser(ctx, identity)
	if err != nil {
		t.Fatalf("UpsertExternalUser() error = %v", err)
	}
	if !core.IsValidUUIDv4(first.UserUUID) {
		t.Errorf("UserUUID = %q, want a uuid v4", first.UserUUID)
	}

	identity.Name = "octocat-renamed"
	second, err := s.UpsertExternalUser(ctx, identity)
	if err != nil {
		t.Fatalf("second UpsertExternalUser() error = %v", err)
	}
	if second.UserUUID != first.UserUUID {
		t.Errorf("UserUUID changed on re-login: %q -> %q", first.UserUUID, second.UserUUID)
	}
	if second.Name != "octocat-renamed" {
		t.Errorf("Name = %q, want refreshed profile", second.Name)
	}
}

func TestUpsertExternalUser_RejectsUnknownSource(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertExternalUser(context.Background(), core.ExternalIdentity{Source: "wechat", UnionID: "1"})
	if err == nil {
		t.Fatal("expected error for unsupported source")
	}
}
