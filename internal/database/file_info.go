package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"efm-go/internal/efm"
)

// SQLite caps bound parameters; batch lookups are chunked below this.
const maxQueryParams = 500

const fileInfoColumns = "id, sha1, file_size, archive_file_name, file_type, cloud_sync_state"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileInfo(row rowScanner) (*efm.FileInfo, error) {
	var fi efm.FileInfo
	if err := row.Scan(&fi.ID, &fi.SHA1, &fi.FileSize, &fi.ArchiveFileName, &fi.FileType, &fi.CloudSyncState); err != nil {
		return nil, err
	}
	return &fi, nil
}

func queryFileInfos(ctx context.Context, q queryer, query string, args ...any) ([]*efm.FileInfo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*efm.FileInfo
	for rows.Next() {
		fi, err := scanFileInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

func getFileInfo(ctx context.Context, q queryer, id int64) (*efm.FileInfo, error) {
	fi, err := scanFileInfo(q.QueryRowContext(ctx,
		"SELECT "+fileInfoColumns+" FROM file_info WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return fi, err
}

func findFileInfoByChecksum(ctx context.Context, q queryer, sha1 efm.Checksum) (*efm.FileInfo, error) {
	fi, err := scanFileInfo(q.QueryRowContext(ctx,
		"SELECT "+fileInfoColumns+" FROM file_info WHERE sha1 = ?", sha1))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return fi, err
}

// upsertFileInfo returns the id of the FileInfo for m.SHA1, inserting a
// pending-upload row when none exists. A row waiting for remote deletion is
// revived to pending-upload since the content is wanted again.
func upsertFileInfo(ctx context.Context, q queryer, m efm.NewFileSetMember) (int64, error) {
	existing, err := findFileInfoByChecksum(ctx, q, m.SHA1)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.CloudSyncState == efm.SyncPendingDelete {
			if _, err := q.ExecContext(ctx,
				"UPDATE file_info SET cloud_sync_state = ? WHERE id = ?",
				efm.SyncPendingUpload, existing.ID); err != nil {
				return 0, err
			}
		}
		return existing.ID, nil
	}

	archiveName := m.ArchiveFileName
	if archiveName == "" {
		archiveName = efm.ArchiveFileName(m.SHA1)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO file_info (sha1, file_size, archive_file_name, file_type, cloud_sync_state)
		 VALUES (?, ?, ?, ?, ?)`,
		m.SHA1, m.FileSize, archiveName, m.FileType, efm.SyncPendingUpload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func fileInfoRefCount(ctx context.Context, q queryer, id int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM file_set_file_info WHERE file_info_id = ?", id).Scan(&n)
	return n, err
}

type fileInfoRepo struct {
	db *sql.DB
}

func (r *fileInfoRepo) Get(ctx context.Context, id int64) (*efm.FileInfo, error) {
	fi, err := getFileInfo(ctx, r.db, id)
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("getting file info %d", id), err)
	}
	return fi, nil
}

func (r *fileInfoRepo) FindByChecksum(ctx context.Context, sha1 efm.Checksum) (*efm.FileInfo, error) {
	fi, err := findFileInfoByChecksum(ctx, r.db, sha1)
	if err != nil {
		return nil, efm.NewDBError("finding file info by checksum", err)
	}
	return fi, nil
}

func (r *fileInfoRepo) FindByChecksums(ctx context.Context, sha1s []efm.Checksum) ([]*efm.FileInfo, error) {
	var out []*efm.FileInfo
	for start := 0; start < len(sha1s); start += maxQueryParams {
		end := min(start+maxQueryParams, len(sha1s))
		chunk := sha1s[start:end]

		args := make([]any, len(chunk))
		for i, c := range chunk {
			args[i] = c
		}
		found, err := queryFileInfos(ctx, r.db,
			"SELECT "+fileInfoColumns+" FROM file_info WHERE sha1 IN ("+placeholders(len(chunk))+") ORDER BY id",
			args...)
		if err != nil {
			return nil, efm.NewDBError("finding file infos by checksum", err)
		}
		out = append(out, found...)
	}
	return out, nil
}

func (r *fileInfoRepo) ListBySyncState(ctx context.Context, state efm.CloudSyncState) ([]*efm.FileInfo, error) {
	out, err := queryFileInfos(ctx, r.db,
		"SELECT "+fileInfoColumns+" FROM file_info WHERE cloud_sync_state = ? ORDER BY id", state)
	if err != nil {
		return nil, efm.NewDBError("listing file infos by sync state", err)
	}
	return out, nil
}

func (r *fileInfoRepo) ListByFileTypes(ctx context.Context, types []efm.FileType) ([]*efm.FileInfo, error) {
	if len(types) == 0 {
		return nil, nil
	}
	out, err := queryFileInfos(ctx, r.db,
		"SELECT "+fileInfoColumns+" FROM file_info WHERE file_type IN ("+placeholders(len(types))+") ORDER BY id",
		fileTypeArgs(types)...)
	if err != nil {
		return nil, efm.NewDBError("listing file infos by type", err)
	}
	return out, nil
}

func (r *fileInfoRepo) SetSyncState(ctx context.Context, id int64, state efm.CloudSyncState) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE file_info SET cloud_sync_state = ? WHERE id = ?", state, id); err != nil {
		return efm.NewDBError(fmt.Sprintf("setting sync state of file info %d", id), err)
	}
	return nil
}

func (r *fileInfoRepo) RefCount(ctx context.Context, id int64) (int, error) {
	n, err := fileInfoRefCount(ctx, r.db, id)
	if err != nil {
		return 0, efm.NewDBError(fmt.Sprintf("counting references to file info %d", id), err)
	}
	return n, nil
}

func (r *fileInfoRepo) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		n, err := fileInfoRefCount(ctx, tx, id)
		if err != nil {
			return efm.NewDBError("counting file info references", err)
		}
		if n > 0 {
			return efm.NewInUseError(fmt.Sprintf("file info %d is referenced by %d file sets", id, n))
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_info WHERE id = ?", id); err != nil {
			return efm.NewDBError(fmt.Sprintf("deleting file info %d", id), err)
		}
		return nil
	})
}
