package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"efm-go/internal/cloud"
	"efm-go/internal/cloudsync"
	"efm-go/internal/database"
	"efm-go/internal/download"
	"efm-go/internal/efm"
	"efm-go/internal/fileimport"
	"efm-go/internal/massimport"
	"efm-go/internal/testutil"
)

type env struct {
	db   *database.SQLiteDatabase
	coll *testutil.TestCollection
	ops  *cloud.MemoryOps
	svc  *Service
	src  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	ops := cloud.NewMemoryOps()
	return &env{
		db:   db,
		coll: testutil.NewTestCollection(t, db),
		ops:  ops,
		svc:  New(Options{Repos: db, Connect: cloud.StaticConnector(ops)}),
		src:  t.TempDir(),
	}
}

func (e *env) fileInfo(t *testing.T, content []byte) *efm.FileInfo {
	t.Helper()
	fi, err := e.db.FileInfos().FindByChecksum(context.Background(), efm.HashBytes(content))
	if err != nil {
		t.Fatal(err)
	}
	return fi
}

func blobExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestService_ImportPlainFile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := bytes.Repeat([]byte{1}, 1024)
	src := testutil.WriteFile(t, e.src, "game.rom", content)

	res, err := e.svc.AddFileSet(ctx, fileimport.AddFileSetInput{Path: src, FileType: efm.FileTypeRom}, nil)
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}
	if res.FileSet.Name != "game" {
		t.Errorf("Name = %q, want game", res.FileSet.Name)
	}

	path := e.coll.BlobPath(efm.FileTypeRom, content)
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(data, content) {
		t.Fatalf("blob at %s: %v", path, err)
	}
	fi := e.fileInfo(t, content)
	if fi.FileSize != 1024 || fi.CloudSyncState != efm.SyncPendingUpload {
		t.Errorf("file info = %+v", fi)
	}
}

func TestService_ArchiveReimport(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a, b := []byte("member a"), []byte("member b")
	src := testutil.WriteZip(t, e.src, "pack.zip",
		testutil.ZipEntry{Name: "a.rom", Content: a},
		testutil.ZipEntry{Name: "b.rom", Content: b},
	)
	in := fileimport.AddFileSetInput{Path: src, FileType: efm.FileTypeRom}

	first, err := e.svc.AddFileSet(ctx, in, nil)
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}
	files, _ := e.db.FileSets().Files(ctx, first.FileSet.ID)
	if len(files) != 2 {
		t.Fatalf("members = %d, want 2", len(files))
	}
	ids := map[efm.Checksum]int64{}
	for _, content := range [][]byte{a, b} {
		fi := e.fileInfo(t, content)
		if fi.CloudSyncState != efm.SyncPendingUpload {
			t.Errorf("state = %v", fi.CloudSyncState)
		}
		ids[fi.SHA1] = fi.ID
	}

	events := make(chan efm.ProgressEvent, 16)
	second, err := e.svc.AddFileSet(ctx, in, events)
	if err != nil {
		t.Fatalf("second AddFileSet() error = %v", err)
	}
	close(events)
	for ev := range events {
		if _, ok := ev.(efm.FileStored); ok {
			t.Errorf("re-import stored a file: %+v", ev)
		}
	}
	if second.FileSet.ID != first.FileSet.ID {
		t.Errorf("re-import created set %d", second.FileSet.ID)
	}
	sets, _ := e.db.FileSets().List(ctx)
	if len(sets) != 1 {
		t.Errorf("sets = %d, want 1", len(sets))
	}
	for _, content := range [][]byte{a, b} {
		if fi := e.fileInfo(t, content); fi.ID != ids[fi.SHA1] {
			t.Errorf("file info id changed: %d", fi.ID)
		}
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, second := []byte("first file"), []byte("second file")

	var setIDs []int64
	for name, content := range map[string][]byte{"one.rom": first, "two.rom": second} {
		res, err := e.svc.AddFileSet(ctx, fileimport.AddFileSetInput{
			Path:     testutil.WriteFile(t, e.src, name, content),
			FileType: efm.FileTypeRom,
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		setIDs = append(setIDs, res.FileSet.ID)
	}

	// one upload fails
	secondKey := efm.CloudKey(efm.FileTypeRom, testutil.SHA1Hex(second))
	e.ops.FailUpload(secondKey, errors.New("503 slow down"))
	sync, err := e.svc.SyncToCloud(ctx, cloudsync.Options{}, nil)
	if err != nil {
		t.Fatalf("SyncToCloud() error = %v", err)
	}
	if sync.SuccessfulUploads != 1 || sync.FailedUploads != 1 {
		t.Errorf("sync = %+v", sync)
	}
	if got := e.fileInfo(t, first).CloudSyncState; got != efm.SyncUploaded {
		t.Errorf("first state = %v", got)
	}
	if got := e.fileInfo(t, second).CloudSyncState; got != efm.SyncPendingUpload {
		t.Errorf("second state = %v", got)
	}

	// the retry uploads exactly the failed file
	e.ops.FailUpload(secondKey, nil)
	before := len(e.ops.Uploads())
	sync, err = e.svc.SyncToCloud(ctx, cloudsync.Options{UploadDatabase: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sync.SuccessfulUploads != 1 || sync.FailedUploads != 0 || !sync.DatabaseUploaded {
		t.Errorf("retry = %+v", sync)
	}
	if uploads := e.ops.Uploads()[before:]; len(uploads) != 2 || uploads[0] != secondKey {
		t.Errorf("retry uploads = %v", uploads)
	}

	// a blob lost locally comes back from the cloud
	firstPath := e.coll.BlobPath(efm.FileTypeRom, first)
	var firstSet int64
	for _, id := range setIDs {
		files, _ := e.db.FileSets().Files(ctx, id)
		if files[0].FileInfo.SHA1 == efm.HashBytes(first) {
			firstSet = id
		}
	}
	if err := os.Remove(firstPath); err != nil {
		t.Fatal(err)
	}
	dl, err := e.svc.DownloadFileSet(ctx, download.Input{FileSetID: firstSet, ExtractFiles: true}, nil)
	if err != nil {
		t.Fatalf("DownloadFileSet() error = %v", err)
	}
	if dl.SuccessfulDownloads != 1 || !blobExists(firstPath) {
		t.Errorf("download = %+v", dl)
	}

	// deletion tombstones, the next sync removes the object and the row
	del, err := e.svc.DeleteFileSet(ctx, firstSet)
	if err != nil {
		t.Fatalf("DeleteFileSet() error = %v", err)
	}
	if len(del.Tombstoned) != 1 || blobExists(firstPath) {
		t.Errorf("delete = %+v", del)
	}
	if got := e.fileInfo(t, first).CloudSyncState; got != efm.SyncPendingDelete {
		t.Errorf("state after delete = %v", got)
	}
	sync, err = e.svc.SyncToCloud(ctx, cloudsync.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sync.SuccessfulDeletions != 1 {
		t.Errorf("deletion sync = %+v", sync)
	}
	if fi := e.fileInfo(t, first); fi != nil {
		t.Errorf("file info survived: %+v", fi)
	}
	if _, ok := e.ops.Get(efm.CloudKey(efm.FileTypeRom, testutil.SHA1Hex(first))); ok {
		t.Error("cloud object survived")
	}
}

func TestService_MassImport(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, n := range []string{"C", "A", "B"} {
		testutil.WriteFile(t, e.src, n+".rom", []byte(n))
	}
	testutil.WriteFile(t, e.src, "Thumbs.db", []byte("junk"))
	e.svc = New(Options{Repos: e.db, Ignore: []string{"Thumbs.db"}})

	events := make(chan efm.ProgressEvent, 16)
	res, err := e.svc.MassImport(ctx, massimport.Input{Dir: e.src, FileType: efm.FileTypeRom}, events)
	if err != nil {
		t.Fatalf("MassImport() error = %v", err)
	}
	close(events)

	var got []string
	for ev := range events {
		if imp, ok := ev.(efm.FileSetImported); ok {
			got = append(got, imp.FileSetName)
		}
	}
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("events = %v, want [A B C]", got)
	}
	if len(res.Items) != 3 {
		t.Errorf("items = %+v", res.Items)
	}
	infos, err := e.db.FileInfos().ListBySyncState(ctx, efm.SyncPendingUpload)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Errorf("file infos = %d, want 3", len(infos))
	}
}

func TestService_MigrateFileTypes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := []byte("cover")
	if _, err := e.svc.AddFileSet(ctx, fileimport.AddFileSetInput{
		Path:     testutil.WriteFile(t, e.src, "cover.png", content),
		FileType: efm.FileTypeCoverScan,
	}, nil); err != nil {
		t.Fatal(err)
	}

	res, err := e.svc.MigrateFileTypes(ctx)
	if err != nil {
		t.Fatalf("MigrateFileTypes() error = %v", err)
	}
	if res.RetypedFileSets != 1 || !blobExists(e.coll.BlobPath(efm.FileTypeScan, content)) {
		t.Errorf("result = %+v", res)
	}
	if len(e.ops.Uploads()) != 0 {
		t.Error("migration touched the cloud for local-only content")
	}
}

func TestService_MissingSettings(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	svc := New(Options{Repos: db})

	_, err := svc.AddFileSet(context.Background(), fileimport.AddFileSetInput{
		Path:     testutil.WriteFile(t, t.TempDir(), "x.rom", []byte("x")),
		FileType: efm.FileTypeRom,
	}, nil)
	if !errors.Is(err, efm.ErrSettings) {
		t.Errorf("error = %v, want settings error", err)
	}
}
