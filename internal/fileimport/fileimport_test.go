package fileimport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"efm-go/internal/database"
	"efm-go/internal/efm"
	"efm-go/internal/metadata"
	"efm-go/internal/testutil"
)

type env struct {
	db         *database.SQLiteDatabase
	collection *testutil.TestCollection
	srcDir     string
	events     chan efm.ProgressEvent
	deps       Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	coll := testutil.NewTestCollection(t, db)
	events := make(chan efm.ProgressEvent, 64)
	return &env{
		db:         db,
		collection: coll,
		srcDir:     t.TempDir(),
		events:     events,
		deps: Deps{
			Repos:      db,
			Store:      coll.Store,
			OpenReader: metadata.NewReader,
			Progress:   events,
		},
	}
}

// stored drains the FileStored events emitted so far.
func (e *env) stored() []efm.FileStored {
	var out []efm.FileStored
	for {
		select {
		case ev := <-e.events:
			if fs, ok := ev.(efm.FileStored); ok {
				out = append(out, fs)
			}
		default:
			return out
		}
	}
}

func (e *env) assertBlob(t *testing.T, ft efm.FileType, content []byte) {
	t.Helper()
	got, err := os.ReadFile(e.collection.BlobPath(ft, content))
	if err != nil {
		t.Fatalf("blob missing: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("blob content differs")
	}
}

func TestAddFileSet_PlainFile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := bytes.Repeat([]byte{0xA5}, 1024)
	src := testutil.WriteFile(t, e.srcDir, "game.rom", content)

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeRom})
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}

	e.assertBlob(t, efm.FileTypeRom, content)

	if res.FileSet.Name != "game" {
		t.Errorf("file set name = %q, want game", res.FileSet.Name)
	}
	if res.FileSet.CanonicalFileName != "game.rom" {
		t.Errorf("canonical file name = %q", res.FileSet.CanonicalFileName)
	}

	fi, err := e.db.FileInfos().FindByChecksum(ctx, efm.HashBytes(content))
	if err != nil || fi == nil {
		t.Fatalf("FindByChecksum() = %v, %v", fi, err)
	}
	if fi.FileSize != 1024 {
		t.Errorf("file size = %d, want 1024", fi.FileSize)
	}
	if fi.CloudSyncState != efm.SyncPendingUpload {
		t.Errorf("sync state = %v, want pending-upload", fi.CloudSyncState)
	}

	files, err := e.db.FileSets().Files(ctx, res.FileSet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].FileName != "game.rom" {
		t.Errorf("members = %+v", files)
	}

	ev := e.stored()
	if len(ev) != 1 || ev[0].FileName != "game.rom" || ev[0].TotalFiles != 1 {
		t.Errorf("FileStored events = %+v", ev)
	}
}

func TestAddFileSet_ZipAndReimport(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a, b := []byte("member a"), []byte("member b")
	src := testutil.WriteZip(t, e.srcDir, "pack.zip",
		testutil.ZipEntry{Name: "a.rom", Content: a},
		testutil.ZipEntry{Name: "b.rom", Content: b},
	)

	first, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeRom})
	if err != nil {
		t.Fatalf("first AddFileSet() error = %v", err)
	}
	e.assertBlob(t, efm.FileTypeRom, a)
	e.assertBlob(t, efm.FileTypeRom, b)

	files, _ := e.db.FileSets().Files(ctx, first.FileSet.ID)
	if len(files) != 2 {
		t.Fatalf("got %d members, want 2", len(files))
	}
	for _, f := range files {
		if f.FileInfo.CloudSyncState != efm.SyncPendingUpload {
			t.Errorf("%s sync state = %v", f.FileName, f.FileInfo.CloudSyncState)
		}
	}
	if n := len(e.stored()); n != 2 {
		t.Errorf("first import stored %d files, want 2", n)
	}

	second, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeRom})
	if err != nil {
		t.Fatalf("second AddFileSet() error = %v", err)
	}
	if !second.Skipped {
		t.Error("second import not reported as skipped")
	}
	if second.FileSet.ID != first.FileSet.ID {
		t.Errorf("second import returned set %d, want %d", second.FileSet.ID, first.FileSet.ID)
	}
	if len(second.Stored) != 0 {
		t.Errorf("second import stored %d files", len(second.Stored))
	}
	if ev := e.stored(); len(ev) != 0 {
		t.Errorf("second import emitted %v", ev)
	}

	sets, _ := e.db.FileSets().List(ctx)
	if len(sets) != 1 {
		t.Errorf("got %d file sets, want 1", len(sets))
	}
	infos, _ := e.db.FileInfos().ListBySyncState(ctx, efm.SyncPendingUpload)
	if len(infos) != 2 {
		t.Errorf("got %d file infos, want 2", len(infos))
	}
}

func TestAddFileSet_MembersInFolders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sideA, sideB := []byte("side A"), []byte("side B")
	src := testutil.WriteZip(t, e.srcDir, "game.zip",
		testutil.ZipEntry{Name: "disk1/game.d64", Content: sideA},
		testutil.ZipEntry{Name: "disk2/game.d64", Content: sideB},
	)

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeDiskImage})
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}
	e.assertBlob(t, efm.FileTypeDiskImage, sideA)
	e.assertBlob(t, efm.FileTypeDiskImage, sideB)

	files, err := e.db.FileSets().Files(ctx, res.FileSet.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]efm.Checksum{
		"disk1/game.d64": efm.HashBytes(sideA),
		"disk2/game.d64": efm.HashBytes(sideB),
	}
	if len(files) != len(want) {
		t.Fatalf("got %d members, want %d", len(files), len(want))
	}
	for _, f := range files {
		if sum, ok := want[f.FileName]; !ok || f.FileInfo.SHA1 != sum {
			t.Errorf("member %s has %s", f.FileName, f.FileInfo.SHA1)
		}
	}
}

func TestAddFileSet_SameContentTwice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	blank := bytes.Repeat([]byte{0}, 512)
	src := testutil.WriteZip(t, e.srcDir, "blank.zip",
		testutil.ZipEntry{Name: "disk1.d64", Content: blank},
		testutil.ZipEntry{Name: "disk2.d64", Content: blank},
	)

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeDiskImage})
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}
	if n := len(e.stored()); n != 1 {
		t.Errorf("stored %d blobs, want 1", n)
	}

	files, err := e.db.FileSets().Files(ctx, res.FileSet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("file set has %d members, want 2", len(files))
	}
	if files[0].FileName != "disk1.d64" || files[1].FileName != "disk2.d64" {
		t.Errorf("member names = %s, %s", files[0].FileName, files[1].FileName)
	}
	if files[0].FileInfo.ID != files[1].FileInfo.ID {
		t.Errorf("members point at file infos %d and %d, want one", files[0].FileInfo.ID, files[1].FileInfo.ID)
	}

	again, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeDiskImage})
	if err != nil {
		t.Fatalf("second AddFileSet() error = %v", err)
	}
	if !again.Skipped || again.FileSet.ID != res.FileSet.ID {
		t.Errorf("second import = %+v, want skip to set %d", again, res.FileSet.ID)
	}
}

func TestAddFileSet_RestoresMissingBlob(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := []byte("disk")
	src := testutil.WriteFile(t, e.srcDir, "disk.d64", content)

	if _, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeDiskImage}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(e.collection.BlobPath(efm.FileTypeDiskImage, content)); err != nil {
		t.Fatal(err)
	}
	e.stored()

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: src, FileType: efm.FileTypeDiskImage})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || len(res.Stored) != 1 {
		t.Errorf("result = %+v, want skipped with one restored blob", res)
	}
	e.assertBlob(t, efm.FileTypeDiskImage, content)
}

func TestAddFileSet_WithRelease(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sys, err := e.db.Systems().Add(ctx, "Commodore 64")
	if err != nil {
		t.Fatal(err)
	}
	src := testutil.WriteFile(t, e.srcDir, "Elite.d64", []byte("elite"))

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{
		Path:      src,
		FileType:  efm.FileTypeDiskImage,
		SystemIDs: []int64{sys.ID},
		NewRelease: &efm.NewRelease{
			Name:              "Elite",
			SoftwareTitleName: "Elite",
			SystemIDs:         []int64{sys.ID},
		},
	})
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}

	releases, err := e.db.Releases().ListForFileSet(ctx, res.FileSet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].Name != "Elite" {
		t.Errorf("releases = %+v", releases)
	}
	if len(res.FileSet.SystemIDs) != 1 || res.FileSet.SystemIDs[0] != sys.ID {
		t.Errorf("systems = %v", res.FileSet.SystemIDs)
	}
}

func TestAddFileSet_Selected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := testutil.WriteZip(t, e.srcDir, "scans.zip",
		testutil.ZipEntry{Name: "front.png", Content: []byte("front")},
		testutil.ZipEntry{Name: "back.png", Content: []byte("back")},
	)

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{
		Path: src, FileType: efm.FileTypeScan, Name: "Box", Selected: []string{"front.png"},
	})
	if err != nil {
		t.Fatalf("AddFileSet() error = %v", err)
	}
	files, _ := e.db.FileSets().Files(ctx, res.FileSet.ID)
	if len(files) != 1 || files[0].FileName != "front.png" {
		t.Errorf("members = %+v", files)
	}

	_, err = AddFileSet(ctx, e.deps, AddFileSetInput{
		Path: src, FileType: efm.FileTypeScan, Selected: []string{"inlay.png"},
	})
	if !errors.Is(err, efm.ErrInvalidInput) {
		t.Errorf("unknown selection error = %v, want invalid input", err)
	}
}

func TestAddFileSet_MissingSource(t *testing.T) {
	e := newEnv(t)
	_, err := AddFileSet(context.Background(), e.deps, AddFileSetInput{
		Path: e.srcDir + "/missing.rom", FileType: efm.FileTypeRom,
	})
	if !errors.Is(err, efm.ErrFileImport) {
		t.Errorf("error = %v, want file import error", err)
	}
}

// failingReader refuses to open the file named fail.
type failingReader struct {
	*testutil.MockMetadataReader
	fail string
}

func (r *failingReader) Open(name string) (io.ReadCloser, error) {
	if name == r.fail {
		return nil, errors.New("read error")
	}
	return r.MockMetadataReader.Open(name)
}

func TestAddFileSet_PartialFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	mock := testutil.NewMockMetadataReader(map[string][]byte{
		"a.rom": []byte("good"),
		"b.rom": []byte("bad"),
	})
	failing := &failingReader{MockMetadataReader: mock, fail: "b.rom"}
	e.deps.OpenReader = func(string) (efm.MetadataReader, error) { return failing, nil }

	res, err := AddFileSet(ctx, e.deps, AddFileSetInput{Path: "pack.zip", FileType: efm.FileTypeRom})
	if !errors.Is(err, efm.ErrFileImport) {
		t.Fatalf("error = %v, want file import error", err)
	}
	if len(res.Stored) != 1 {
		t.Errorf("stored %d blobs before failing, want 1", len(res.Stored))
	}
	e.assertBlob(t, efm.FileTypeRom, []byte("good"))
	if sets, _ := e.db.FileSets().List(ctx); len(sets) != 0 {
		t.Errorf("file set created despite failure: %+v", sets)
	}
	e.stored()

	failing.fail = ""
	res, err = AddFileSet(ctx, e.deps, AddFileSetInput{Path: "pack.zip", FileType: efm.FileTypeRom})
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	ev := e.stored()
	if len(ev) != 1 || ev[0].FileName != "b.rom" {
		t.Errorf("retry stored %+v, want only b.rom", ev)
	}
	if res.FileSet == nil {
		t.Error("retry created no file set")
	}
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	known := []byte("known")
	if _, err := AddFileSet(ctx, e.deps, AddFileSetInput{
		Path: testutil.WriteFile(t, e.srcDir, "known.rom", known), FileType: efm.FileTypeRom,
	}); err != nil {
		t.Fatal(err)
	}
	e.stored()

	src := testutil.WriteZip(t, e.srcDir, "mixed.zip",
		testutil.ZipEntry{Name: "known.rom", Content: known},
		testutil.ZipEntry{Name: "fresh.rom", Content: []byte("fresh")},
	)
	res, err := Prepare(ctx, e.deps, src, efm.FileTypeRom)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if !res.IsArchive || res.SuggestedName != "mixed" {
		t.Errorf("IsArchive = %v, SuggestedName = %q", res.IsArchive, res.SuggestedName)
	}
	if res.NewFiles != 1 || res.ExistingFiles != 1 {
		t.Errorf("new = %d, existing = %d; want 1, 1", res.NewFiles, res.ExistingFiles)
	}
	if len(res.MatchingFileSets) != 0 {
		t.Errorf("matching sets = %+v, want none", res.MatchingFileSets)
	}
	if _, err := os.Stat(e.collection.BlobPath(efm.FileTypeRom, []byte("fresh"))); !os.IsNotExist(err) {
		t.Error("prepare wrote a blob")
	}
	if ev := e.stored(); len(ev) != 0 {
		t.Errorf("prepare emitted %v", ev)
	}
}

func TestAddFilesToFileSet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, err := AddFileSet(ctx, e.deps, AddFileSetInput{
		Path: testutil.WriteFile(t, e.srcDir, "side1.d64", []byte("side 1")), FileType: efm.FileTypeDiskImage, Name: "Game",
	})
	if err != nil {
		t.Fatal(err)
	}

	side2 := testutil.WriteFile(t, e.srcDir, "side2.d64", []byte("side 2"))
	res, err := AddFilesToFileSet(ctx, e.deps, AddFilesInput{FileSetID: first.FileSet.ID, Path: side2})
	if err != nil {
		t.Fatalf("AddFilesToFileSet() error = %v", err)
	}
	if res.Skipped {
		t.Error("new file reported as skipped")
	}
	e.assertBlob(t, efm.FileTypeDiskImage, []byte("side 2"))

	files, _ := e.db.FileSets().Files(ctx, first.FileSet.ID)
	if len(files) != 2 || files[1].FileName != "side2.d64" {
		t.Errorf("members = %+v", files)
	}

	again, err := AddFilesToFileSet(ctx, e.deps, AddFilesInput{FileSetID: first.FileSet.ID, Path: side2})
	if err != nil {
		t.Fatalf("repeated AddFilesToFileSet() error = %v", err)
	}
	if !again.Skipped {
		t.Error("existing member not reported as skipped")
	}

	_, err = AddFilesToFileSet(ctx, e.deps, AddFilesInput{FileSetID: 999, Path: side2})
	if !errors.Is(err, efm.ErrInvalidInput) {
		t.Errorf("missing set error = %v, want invalid input", err)
	}
}

func TestUpdateFileSet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	x, y, z := []byte("x"), []byte("y"), []byte("z")

	orig, err := AddFileSet(ctx, e.deps, AddFileSetInput{
		Path: testutil.WriteZip(t, e.srcDir, "v1.zip",
			testutil.ZipEntry{Name: "x.rom", Content: x},
			testutil.ZipEntry{Name: "y.rom", Content: y}),
		FileType: efm.FileTypeRom,
		Name:     "Game",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := UpdateFileSet(ctx, e.deps, UpdateFileSetInput{
		FileSetID: orig.FileSet.ID,
		Path: testutil.WriteZip(t, e.srcDir, "v2.zip",
			testutil.ZipEntry{Name: "x.rom", Content: x},
			testutil.ZipEntry{Name: "z.rom", Content: z}),
		Name: "Game (v2)",
	})
	if err != nil {
		t.Fatalf("UpdateFileSet() error = %v", err)
	}

	if res.FileSet.Name != "Game (v2)" {
		t.Errorf("name = %q", res.FileSet.Name)
	}
	files, _ := e.db.FileSets().Files(ctx, orig.FileSet.ID)
	if len(files) != 2 || files[0].FileName != "x.rom" || files[1].FileName != "z.rom" {
		t.Errorf("members = %+v", files)
	}

	if len(res.Orphans) != 1 || res.Orphans[0].SHA1 != efm.HashBytes(y) {
		t.Fatalf("orphans = %+v, want y", res.Orphans)
	}
	fi, _ := e.db.FileInfos().FindByChecksum(ctx, efm.HashBytes(y))
	if fi == nil || fi.CloudSyncState != efm.SyncPendingDelete {
		t.Errorf("orphan file info = %+v, want pending-delete", fi)
	}
	if _, err := os.Stat(e.collection.BlobPath(efm.FileTypeRom, y)); !os.IsNotExist(err) {
		t.Error("orphaned blob still on disk")
	}
	if len(res.RemovedBlobs) != 1 {
		t.Errorf("removed = %v", res.RemovedBlobs)
	}
	e.assertBlob(t, efm.FileTypeRom, z)
}
