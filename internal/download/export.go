package download

import (
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
	"efm-go/internal/thumbnail"
)

// exportFiles writes the set into a fresh per-set directory.
func exportFiles(ctx context.Context, c *downloadContext) pipeline.Action {
	if c.result.FailedDownloads > 0 {
		return pipeline.Abort(efm.NewDownloadError(
			fmt.Sprintf("%d of %d files could not be downloaded", c.result.FailedDownloads, len(c.missing)), nil))
	}

	dir := filepath.Join(c.in.OutputDir, strconv.FormatInt(c.result.FileSet.ID, 10))
	if err := os.RemoveAll(dir); err != nil {
		return pipeline.Abort(efm.NewExportError("clearing "+dir, err))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.Abort(efm.NewExportError("creating "+dir, err))
	}
	c.result.ExportDir = dir

	if c.in.ExtractFiles {
		for _, f := range c.result.Files {
			dest, err := extractFile(c.deps.Store, dir, f)
			if err != nil {
				return pipeline.Abort(err)
			}
			c.result.ExportedFiles = append(c.result.ExportedFiles, dest)
		}
	} else {
		dest := filepath.Join(dir, ArchiveName(c.result.FileSet))
		if err := WriteArchive(c.deps.Store, dest, c.result.FileSet.FileType.CompressionLevel(), c.result.Files); err != nil {
			return pipeline.Abort(err)
		}
		c.result.ExportedFiles = append(c.result.ExportedFiles, dest)
	}

	c.logger().Info("file set exported", "file_set", c.result.FileSet.Name, "dir", dir, "extract", c.in.ExtractFiles)
	return pipeline.Continue
}

func memberPath(dir string, f *efm.FileSetFile) (string, error) {
	if !filepath.IsLocal(f.FileName) {
		return "", efm.NewExportError("unsafe file name in set: "+f.FileName, nil)
	}
	return filepath.Join(dir, f.FileName), nil
}

func extractFile(store efm.BlobStore, dir string, f *efm.FileSetFile) (string, error) {
	dest, err := memberPath(dir, f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", efm.NewExportError("creating directory for "+f.FileName, err)
	}

	src, err := store.Open(f.FileInfo.FileType, f.FileInfo.ArchiveFileName)
	if err != nil {
		return "", efm.NewExportError("opening "+f.FileInfo.ArchiveFileName, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-export-*")
	if err != nil {
		return "", efm.NewExportError("creating temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", efm.NewExportError("copying "+f.FileName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", efm.NewExportError("closing "+f.FileName, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", efm.NewExportError("renaming into "+dest, err)
	}
	return dest, nil
}

// ArchiveName returns the zip file name used when exporting fs as an archive.
func ArchiveName(fs *efm.FileSet) string {
	if fs.CanonicalFileName == "" {
		return fs.Name + ".zip"
	}
	return strings.TrimSuffix(fs.CanonicalFileName, filepath.Ext(fs.CanonicalFileName)) + ".zip"
}

// WriteArchive packs files into a zip at dest, deflating at level.
func WriteArchive(store efm.BlobStore, dest string, level int, files []*efm.FileSetFile) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-archive-*")
	if err != nil {
		return efm.NewExportError("creating temp archive", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	for _, f := range files {
		if !filepath.IsLocal(f.FileName) {
			tmp.Close()
			return efm.NewExportError("unsafe file name in set: "+f.FileName, nil)
		}
		if err := addToArchive(zw, store, f); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return efm.NewExportError("finishing archive", err)
	}
	if err := tmp.Close(); err != nil {
		return efm.NewExportError("closing archive", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return efm.NewExportError("renaming into "+dest, err)
	}
	return nil
}

func addToArchive(zw *zip.Writer, store efm.BlobStore, f *efm.FileSetFile) error {
	src, err := store.Open(f.FileInfo.FileType, f.FileInfo.ArchiveFileName)
	if err != nil {
		return efm.NewExportError("opening "+f.FileInfo.ArchiveFileName, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   filepath.ToSlash(f.FileName),
		Method: zip.Deflate,
	})
	if err != nil {
		return efm.NewExportError("adding "+f.FileName, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return efm.NewExportError("compressing "+f.FileName, err)
	}
	return nil
}

// prepareThumbnails renders a preview for every image of the set. Failures
// are logged and leave the export intact.
func prepareThumbnails(ctx context.Context, c *downloadContext) pipeline.Action {
	layout := c.deps.Store.Layout()
	for _, f := range c.result.Files {
		if !filepath.IsLocal(f.FileName) {
			continue
		}
		src := layout.Path(f.FileInfo.FileType, f.FileInfo.ArchiveFileName)
		dest := thumbnail.PathFor(c.result.ExportDir, f.FileName)
		if err := c.deps.Thumbnails.RenderFile(src, dest); err != nil {
			c.logger().Warn("thumbnail failed", "file", f.FileName, "error", err)
			continue
		}
		c.result.Thumbnails = append(c.result.Thumbnails, dest)
	}
	return pipeline.Continue
}
