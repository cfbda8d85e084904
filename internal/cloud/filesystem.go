package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"efm-go/internal/efm"
)

// FileSystemOps mirrors the cloud key space into a local directory, typically
// a mounted network share or removable drive:
//
//	<root>/
//	  <file_type.slug>/
//	    <archive_file_name>
//	  metadata/
//	    db.sqlite
type FileSystemOps struct {
	root string
	ids  efm.IDGenerator
}

var (
	_ efm.CloudOps   = (*FileSystemOps)(nil)
	_ efm.CloudMover = (*FileSystemOps)(nil)
)

// NewFileSystemOps creates ops rooted at root, creating the directory if needed.
func NewFileSystemOps(root string, ids efm.IDGenerator) (*FileSystemOps, error) {
	if root == "" {
		return nil, efm.NewSettingsError(efm.SettingCloudFSRoot + " is not set")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, efm.NewCloudSyncError("creating cloud root", err)
	}
	return &FileSystemOps{root: root, ids: ids}, nil
}

func (o *FileSystemOps) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", efm.NewInvalidInputError(fmt.Sprintf("invalid cloud key %q", key))
	}
	return filepath.Join(o.root, clean), nil
}

// Upload copies localPath to key. Re-uploading an existing key replaces it.
func (o *FileSystemOps) Upload(ctx context.Context, localPath, key string, progress chan<- efm.ProgressEvent) error {
	dest, err := o.path(key)
	if err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return efm.NewCloudSyncError("opening "+localPath, err)
	}
	defer src.Close()

	if err := o.writeFile(ctx, dest, src, nil); err != nil {
		efm.Emit(ctx, progress, efm.PartUploadFailed{Key: key, Error: err.Error()})
		return efm.NewCloudSyncError("uploading "+key, err)
	}
	return efm.Emit(ctx, progress, efm.PartUploaded{Key: key, Part: 1})
}

// Delete removes key. Deleting a missing key is not an error.
func (o *FileSystemOps) Delete(ctx context.Context, key string) error {
	p, err := o.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return efm.NewCloudSyncError("deleting "+key, err)
	}
	return nil
}

func (o *FileSystemOps) Exists(ctx context.Context, key string) (bool, error) {
	p, err := o.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, efm.NewCloudSyncError("checking "+key, err)
	}
	return true, nil
}

// Download copies key to destPath through a temp file in the destination directory.
func (o *FileSystemOps) Download(ctx context.Context, key, destPath string, progress chan<- efm.ProgressEvent) error {
	p, err := o.path(key)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return efm.NewDownloadError("object not found: "+key, err)
		}
		return efm.NewDownloadError("opening "+key, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return efm.NewDownloadError("reading size of "+key, err)
	}

	report := func(written int64) error {
		return efm.Emit(ctx, progress, efm.FileDownloadProgress{Key: key, BytesWritten: written, TotalBytes: info.Size()})
	}
	if err := o.writeFile(ctx, destPath, src, report); err != nil {
		return efm.NewDownloadError("downloading "+key, err)
	}
	return nil
}

// TestConnection verifies that the root is an accessible directory.
func (o *FileSystemOps) TestConnection(ctx context.Context) error {
	info, err := os.Stat(o.root)
	if err != nil {
		return efm.NewCloudSyncError("cloud root not accessible", err)
	}
	if !info.IsDir() {
		return efm.NewCloudSyncError("cloud root is not a directory: "+o.root, nil)
	}
	return nil
}

// Move renames an object. Moving is a no-op when the source is gone and the
// target exists.
func (o *FileSystemOps) Move(ctx context.Context, fromKey, toKey string) error {
	from, err := o.path(fromKey)
	if err != nil {
		return err
	}
	to, err := o.path(toKey)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); os.IsNotExist(err) {
		if _, err := os.Stat(to); err == nil {
			return nil
		}
		return efm.NewCloudSyncError("object not found: "+fromKey, err)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return efm.NewCloudSyncError("creating directory for "+toKey, err)
	}
	if err := os.Rename(from, to); err != nil {
		return efm.NewCloudSyncError("moving "+fromKey, err)
	}
	return nil
}

// writeFile writes r to destPath using a temp file and rename.
func (o *FileSystemOps) writeFile(ctx context.Context, destPath string, r io.Reader, report func(int64) error) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmpPath := filepath.Join(dir, ".tmp-"+o.ids.New())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	buf := make([]byte, efm.HashBufferSize*8)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return efm.NewOperationCancelledError(err)
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				tmp.Close()
				return fmt.Errorf("writing data: %w", err)
			}
			written += int64(n)
			if report != nil {
				if err := report(written); err != nil {
					tmp.Close()
					return err
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return fmt.Errorf("reading data: %w", rerr)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
