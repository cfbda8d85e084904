package cloudsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"efm-go/internal/cloud"
	"efm-go/internal/database"
	"efm-go/internal/deletion"
	"efm-go/internal/efm"
	"efm-go/internal/fileimport"
	"efm-go/internal/metadata"
	"efm-go/internal/testutil"
)

type env struct {
	db   *database.SQLiteDatabase
	coll *testutil.TestCollection
	ops  *cloud.MemoryOps
	src  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	return &env{
		db:   db,
		coll: testutil.NewTestCollection(t, db),
		ops:  cloud.NewMemoryOps(),
		src:  t.TempDir(),
	}
}

func (e *env) deps(progress chan<- efm.ProgressEvent) Deps {
	return Deps{Repos: e.db, Connect: cloud.StaticConnector(e.ops), Progress: progress}
}

// importFile adds content as a one-file set and returns its cloud key.
func (e *env) importFile(t *testing.T, name string, content []byte) (*efm.FileSet, string) {
	t.Helper()
	res, err := fileimport.AddFileSet(context.Background(), fileimport.Deps{
		Repos: e.db, Store: e.coll.Store, OpenReader: metadata.NewReader,
	}, fileimport.AddFileSetInput{Path: testutil.WriteFile(t, e.src, name, content), FileType: efm.FileTypeRom})
	if err != nil {
		t.Fatalf("importing %s: %v", name, err)
	}
	return res.FileSet, efm.CloudKey(efm.FileTypeRom, testutil.SHA1Hex(content))
}

func (e *env) state(t *testing.T, content []byte) efm.CloudSyncState {
	t.Helper()
	fi, err := e.db.FileInfos().FindByChecksum(context.Background(), efm.HashBytes(content))
	if err != nil || fi == nil {
		t.Fatalf("FindByChecksum() = %v, %v", fi, err)
	}
	return fi.CloudSyncState
}

func TestSyncToCloud_PartialFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, second := []byte("first"), []byte("second")
	_, key1 := e.importFile(t, "first.rom", first)
	_, key2 := e.importFile(t, "second.rom", second)
	e.ops.FailUpload(key2, errors.New("connection reset"))

	res, err := SyncToCloud(ctx, e.deps(nil), Options{})
	if err != nil {
		t.Fatalf("SyncToCloud() error = %v", err)
	}
	if res.SuccessfulUploads != 1 || res.FailedUploads != 1 {
		t.Errorf("result = %+v, want 1 success and 1 failure", res)
	}
	if _, ok := res.UploadErrors[key2]; !ok {
		t.Errorf("upload errors = %v, want entry for %s", res.UploadErrors, key2)
	}
	if got := e.state(t, first); got != efm.SyncUploaded {
		t.Errorf("first state = %v, want uploaded", got)
	}
	if got := e.state(t, second); got != efm.SyncPendingUpload {
		t.Errorf("second state = %v, want pending-upload", got)
	}

	e.ops.FailUpload(key2, nil)
	res, err = SyncToCloud(ctx, e.deps(nil), Options{})
	if err != nil {
		t.Fatalf("second SyncToCloud() error = %v", err)
	}
	if res.SuccessfulUploads != 1 || res.FailedUploads != 0 {
		t.Errorf("second result = %+v", res)
	}
	if got, want := e.ops.Uploads(), []string{key1, key2}; !reflect.DeepEqual(got, want) {
		t.Errorf("uploads = %v, want %v", got, want)
	}
}

func TestSyncToCloud_Events(t *testing.T) {
	e := newEnv(t)
	_, key := e.importFile(t, "game.rom", []byte("game"))
	events := make(chan efm.ProgressEvent, 16)

	if _, err := SyncToCloud(context.Background(), e.deps(events), Options{}); err != nil {
		t.Fatal(err)
	}
	close(events)

	var got []efm.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	want := []efm.ProgressEvent{
		efm.SyncStarted{TotalFiles: 1},
		efm.FileUploadStarted{Key: key, FileNumber: 1, TotalFiles: 1},
		efm.PartUploaded{Key: key, Part: 1},
		efm.FileUploadCompleted{Key: key, FileNumber: 1, TotalFiles: 1},
		efm.SyncCompleted{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %#v\nwant %#v", got, want)
	}
}

func TestSyncToCloud_DeletesTombstoned(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := []byte("gone soon")
	fs, key := e.importFile(t, "gone.rom", content)

	if _, err := SyncToCloud(ctx, e.deps(nil), Options{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.ops.Get(key); !ok {
		t.Fatal("object not uploaded")
	}

	if _, err := deletion.DeleteFileSet(ctx, deletion.Deps{Repos: e.db, Store: e.coll.Store}, fs.ID); err != nil {
		t.Fatal(err)
	}
	e.ops.FailDelete(key, errors.New("denied"))

	res, err := SyncToCloud(ctx, e.deps(nil), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.FailedDeletions != 1 {
		t.Errorf("result = %+v, want one failed deletion", res)
	}
	if got := e.state(t, content); got != efm.SyncPendingDelete {
		t.Errorf("state after failed deletion = %v", got)
	}

	e.ops.FailDelete(key, nil)
	res, err = SyncToCloud(ctx, e.deps(nil), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessfulDeletions != 1 {
		t.Errorf("result = %+v, want one deletion", res)
	}
	if _, ok := e.ops.Get(key); ok {
		t.Error("object still in cloud")
	}
	if fi, _ := e.db.FileInfos().FindByChecksum(ctx, efm.HashBytes(content)); fi != nil {
		t.Errorf("file info still present: %+v", fi)
	}
}

func TestSyncToCloud_PendingUploadDeletedBeforeSync(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	fs, key := e.importFile(t, "never.rom", []byte("never uploaded"))
	if _, err := deletion.DeleteFileSet(ctx, deletion.Deps{Repos: e.db, Store: e.coll.Store}, fs.ID); err != nil {
		t.Fatal(err)
	}

	res, err := SyncToCloud(ctx, e.deps(nil), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessfulUploads != 0 || res.SuccessfulDeletions != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := e.ops.Deletes(); !reflect.DeepEqual(got, []string{key}) {
		t.Errorf("deletes = %v", got)
	}
}

func TestSyncToCloud_MissingLocalFile(t *testing.T) {
	e := newEnv(t)
	content := []byte("lost")
	e.importFile(t, "lost.rom", content)
	if err := os.Remove(e.coll.BlobPath(efm.FileTypeRom, content)); err != nil {
		t.Fatal(err)
	}

	res, err := SyncToCloud(context.Background(), e.deps(nil), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.FailedUploads != 1 || len(e.ops.Uploads()) != 0 {
		t.Errorf("result = %+v, uploads = %v", res, e.ops.Uploads())
	}
}

func TestSyncToCloud_NothingToSync(t *testing.T) {
	e := newEnv(t)
	connected := false
	deps := e.deps(nil)
	deps.Connect = func(context.Context, *efm.Settings) (efm.CloudOps, error) {
		connected = true
		return e.ops, nil
	}

	res, err := SyncToCloud(context.Background(), deps, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if connected {
		t.Error("connected although there was nothing to do")
	}
	if res.SuccessfulUploads != 0 || res.SuccessfulDeletions != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestSyncToCloud_ConnectFailure(t *testing.T) {
	e := newEnv(t)
	e.importFile(t, "game.rom", []byte("game"))

	tests := []struct {
		name    string
		connect efm.CloudConnector
		want    error
	}{
		{
			name: "provider error",
			connect: func(context.Context, *efm.Settings) (efm.CloudOps, error) {
				return nil, errors.New("no route to host")
			},
			want: efm.ErrCloudSync,
		},
		{
			name: "settings error",
			connect: func(context.Context, *efm.Settings) (efm.CloudOps, error) {
				return nil, efm.NewSettingsError("cloud_provider is not set")
			},
			want: efm.ErrSettings,
		},
		{
			name: "no connector",
			want: efm.ErrCloudSync,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := e.deps(nil)
			deps.Connect = tt.connect
			_, err := SyncToCloud(context.Background(), deps, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSyncToCloud_DatabaseSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.importFile(t, "game.rom", []byte("game"))

	res, err := SyncToCloud(ctx, e.deps(nil), Options{UploadDatabase: true})
	if err != nil {
		t.Fatalf("SyncToCloud() error = %v", err)
	}
	if !res.DatabaseUploaded {
		t.Fatal("database snapshot not uploaded")
	}

	dest := filepath.Join(t.TempDir(), "restored.sqlite")
	if err := RestoreDatabase(ctx, e.ops, dest, nil); err != nil {
		t.Fatalf("RestoreDatabase() error = %v", err)
	}

	restored, err := database.NewSQLiteDatabase(dest, testutil.FixedClock())
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	sets, err := restored.FileSets().List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 1 || sets[0].Name != "game" {
		t.Errorf("restored sets = %+v", sets)
	}

	if err := RestoreDatabase(ctx, e.ops, dest, nil); !errors.Is(err, efm.ErrInvalidInput) {
		t.Errorf("restoring over an existing file: error = %v, want invalid input", err)
	}
}

func TestRestoreDatabase_NoSnapshot(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "db.sqlite")
	err := RestoreDatabase(context.Background(), cloud.NewMemoryOps(), dest, nil)
	if !errors.Is(err, efm.ErrDownload) {
		t.Errorf("error = %v, want download error", err)
	}
}
