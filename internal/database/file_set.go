package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"efm-go/internal/efm"
)

const fileSetColumns = "fs.id, fs.name, fs.file_name, fs.file_type, fs.source, fs.created_at"

type fileSetRepo struct {
	db    *sql.DB
	clock efm.Clock
}

func scanFileSet(row rowScanner) (*efm.FileSet, error) {
	var fs efm.FileSet
	if err := row.Scan(&fs.ID, &fs.Name, &fs.CanonicalFileName, &fs.FileType, &fs.Source, &fs.CreatedAt); err != nil {
		return nil, err
	}
	return &fs, nil
}

// queryFileSets reads the set rows first and loads system links afterwards;
// the pool holds a single connection, so rows must be closed before the
// follow-up queries run.
func queryFileSets(ctx context.Context, q queryer, query string, args ...any) ([]*efm.FileSet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var out []*efm.FileSet
	for rows.Next() {
		fs, err := scanFileSet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, fs)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, fs := range out {
		if fs.SystemIDs, err = fileSetSystemIDs(ctx, q, fs.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func getFileSet(ctx context.Context, q queryer, id int64) (*efm.FileSet, error) {
	sets, err := queryFileSets(ctx, q, "SELECT "+fileSetColumns+" FROM file_set fs WHERE fs.id = ?", id)
	if err != nil || len(sets) == 0 {
		return nil, err
	}
	return sets[0], nil
}

func fileSetSystemIDs(ctx context.Context, q queryer, id int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT system_id FROM file_set_system WHERE file_set_id = ? ORDER BY system_id", id)
}

func fileSetMemberIDs(ctx context.Context, q queryer, id int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT file_info_id FROM file_set_file_info WHERE file_set_id = ?", id)
}

func insertFileSetSystems(ctx context.Context, q queryer, id int64, systemIDs []int64) error {
	for _, sysID := range systemIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO file_set_system (file_set_id, system_id) VALUES (?, ?)", id, sysID); err != nil {
			return err
		}
	}
	return nil
}

// insertMembers upserts FileInfos and links them into the set starting at
// sortOrder. The same FileInfo may be linked under several names.
func insertMembers(ctx context.Context, q queryer, setID int64, members []efm.NewFileSetMember, sortOrder int) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		fiID, err := upsertFileInfo(ctx, q, m)
		if err != nil {
			return nil, err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name, sort_order)
			 VALUES (?, ?, ?, ?)`,
			setID, fiID, m.FileName, sortOrder); err != nil {
			return nil, err
		}
		sortOrder++
		ids = append(ids, fiID)
	}
	return ids, nil
}

// validateMembers checks the storage type of each member and that names are
// unique. A member's type may differ from the set's when its content was
// first stored under another type; the FileInfo keeps that type.
func validateMembers(members []efm.NewFileSetMember) error {
	names := make(map[string]bool, len(members))
	for _, m := range members {
		if !m.FileType.Valid() {
			return efm.NewInvalidInputError(fmt.Sprintf("member %s has unknown type %d", m.FileName, int(m.FileType)))
		}
		if m.FileName == "" {
			return efm.NewInvalidInputError("member file name is required")
		}
		if names[m.FileName] {
			return efm.NewInvalidInputError("duplicate member name " + m.FileName)
		}
		names[m.FileName] = true
	}
	return nil
}

func (r *fileSetRepo) Create(ctx context.Context, in efm.NewFileSet) (*efm.FileSet, error) {
	if in.Name == "" {
		return nil, efm.NewInvalidInputError("file set name is required")
	}
	if len(in.Members) == 0 {
		return nil, efm.NewInvalidInputError("file set must contain at least one file")
	}
	if err := validateMembers(in.Members); err != nil {
		return nil, err
	}

	var setID int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO file_set (name, file_name, file_type, source, created_at) VALUES (?, ?, ?, ?, ?)`,
			in.Name, in.CanonicalFileName, in.FileType, in.Source, r.clock.Now())
		if err != nil {
			return efm.NewDBError("inserting file set", err)
		}
		if setID, err = res.LastInsertId(); err != nil {
			return efm.NewDBError("reading file set id", err)
		}

		if err := insertFileSetSystems(ctx, tx, setID, in.SystemIDs); err != nil {
			return efm.NewDBError("linking file set systems", err)
		}
		if _, err := insertMembers(ctx, tx, setID, in.Members, 0); err != nil {
			return efm.NewDBError("linking file set members", err)
		}

		releaseID := in.ReleaseID
		if releaseID == 0 && in.NewRelease != nil {
			rel, err := insertRelease(ctx, tx, *in.NewRelease)
			if err != nil {
				return dbErr("creating release for file set", err)
			}
			releaseID = rel.ID
		}
		if releaseID != 0 {
			if err := linkReleaseFileSet(ctx, tx, releaseID, setID); err != nil {
				return efm.NewDBError("linking file set to release", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, setID)
}

func (r *fileSetRepo) Get(ctx context.Context, id int64) (*efm.FileSet, error) {
	fs, err := getFileSet(ctx, r.db, id)
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("getting file set %d", id), err)
	}
	return fs, nil
}

func (r *fileSetRepo) List(ctx context.Context) ([]*efm.FileSet, error) {
	out, err := queryFileSets(ctx, r.db, "SELECT "+fileSetColumns+" FROM file_set fs ORDER BY fs.name, fs.id")
	if err != nil {
		return nil, efm.NewDBError("listing file sets", err)
	}
	return out, nil
}

func (r *fileSetRepo) ListForRelease(ctx context.Context, releaseID int64) ([]*efm.FileSet, error) {
	out, err := queryFileSets(ctx, r.db,
		`SELECT `+fileSetColumns+` FROM file_set fs
		 JOIN release_file_set rfs ON rfs.file_set_id = fs.id
		 WHERE rfs.release_id = ? ORDER BY fs.name, fs.id`, releaseID)
	if err != nil {
		return nil, efm.NewDBError("listing file sets for release", err)
	}
	return out, nil
}

func (r *fileSetRepo) ListByFileTypes(ctx context.Context, types []efm.FileType) ([]*efm.FileSet, error) {
	if len(types) == 0 {
		return nil, nil
	}
	out, err := queryFileSets(ctx, r.db,
		"SELECT "+fileSetColumns+" FROM file_set fs WHERE fs.file_type IN ("+placeholders(len(types))+") ORDER BY fs.id",
		fileTypeArgs(types)...)
	if err != nil {
		return nil, efm.NewDBError("listing file sets by type", err)
	}
	return out, nil
}

func (r *fileSetRepo) Files(ctx context.Context, id int64) ([]*efm.FileSetFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.file_set_id, m.file_name, m.sort_order,
		        fi.id, fi.sha1, fi.file_size, fi.archive_file_name, fi.file_type, fi.cloud_sync_state
		 FROM file_set_file_info m
		 JOIN file_info fi ON fi.id = m.file_info_id
		 WHERE m.file_set_id = ?
		 ORDER BY m.sort_order, m.file_name`, id)
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("listing files of file set %d", id), err)
	}
	defer rows.Close()

	var out []*efm.FileSetFile
	for rows.Next() {
		var f efm.FileSetFile
		fi := &f.FileInfo
		if err := rows.Scan(&f.FileSetID, &f.FileName, &f.SortOrder,
			&fi.ID, &fi.SHA1, &fi.FileSize, &fi.ArchiveFileName, &fi.FileType, &fi.CloudSyncState); err != nil {
			return nil, efm.NewDBError("scanning file set file", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing files of file set", err)
	}
	return out, nil
}

func (r *fileSetRepo) AddFiles(ctx context.Context, id int64, members []efm.NewFileSetMember) error {
	if err := validateMembers(members); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, m := range members {
			var taken bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS (SELECT 1 FROM file_set_file_info WHERE file_set_id = ? AND file_name = ?)",
				id, m.FileName).Scan(&taken); err != nil {
				return efm.NewDBError("checking member names", err)
			}
			if taken {
				return efm.NewInvalidInputError(fmt.Sprintf("file set %d already has a file named %s", id, m.FileName))
			}
		}

		var next sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(sort_order) + 1 FROM file_set_file_info WHERE file_set_id = ?", id).Scan(&next); err != nil {
			return efm.NewDBError("reading file set sort order", err)
		}
		if _, err := insertMembers(ctx, tx, id, members, int(next.Int64)); err != nil {
			return efm.NewDBError(fmt.Sprintf("adding files to file set %d", id), err)
		}
		return nil
	})
}

func (r *fileSetRepo) Update(ctx context.Context, id int64, in efm.UpdateFileSet) ([]*efm.FileInfo, error) {
	if len(in.Members) == 0 {
		return nil, efm.NewInvalidInputError("file set must contain at least one file")
	}
	if err := validateMembers(in.Members); err != nil {
		return nil, err
	}

	var orphans []*efm.FileInfo
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getFileSet(ctx, tx, id)
		if err != nil {
			return efm.NewDBError("loading file set", err)
		}
		if current == nil {
			return efm.NewInvalidInputError(fmt.Sprintf("file set %d does not exist", id))
		}

		before, err := fileSetMemberIDs(ctx, tx, id)
		if err != nil {
			return efm.NewDBError("listing current members", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE file_set SET name = ?, file_name = ?, source = ? WHERE id = ?",
			in.Name, in.CanonicalFileName, in.Source, id); err != nil {
			return efm.NewDBError("updating file set", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_set_system WHERE file_set_id = ?", id); err != nil {
			return efm.NewDBError("clearing file set systems", err)
		}
		if err := insertFileSetSystems(ctx, tx, id, in.SystemIDs); err != nil {
			return efm.NewDBError("linking file set systems", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_set_file_info WHERE file_set_id = ?", id); err != nil {
			return efm.NewDBError("clearing file set members", err)
		}
		after, err := insertMembers(ctx, tx, id, in.Members, 0)
		if err != nil {
			return efm.NewDBError("linking file set members", err)
		}

		kept := make(map[int64]bool, len(after))
		for _, fiID := range after {
			kept[fiID] = true
		}
		var dropped []int64
		for _, fiID := range before {
			if !kept[fiID] {
				dropped = append(dropped, fiID)
			}
		}

		orphans, err = tombstoneOrphans(ctx, tx, dropped)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orphans, nil
}

// tombstoneOrphans marks FileInfos that are no longer referenced by any set.
// Content known to the cloud becomes pending-delete; local-only rows are removed.
// The returned FileInfos carry their new state.
func tombstoneOrphans(ctx context.Context, q queryer, candidates []int64) ([]*efm.FileInfo, error) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var orphans []*efm.FileInfo
	for i, fiID := range candidates {
		if i > 0 && candidates[i-1] == fiID {
			continue
		}
		n, err := fileInfoRefCount(ctx, q, fiID)
		if err != nil {
			return nil, efm.NewDBError("counting file info references", err)
		}
		if n > 0 {
			continue
		}
		fi, err := getFileInfo(ctx, q, fiID)
		if err != nil {
			return nil, efm.NewDBError("loading orphaned file info", err)
		}
		if fi == nil {
			continue
		}

		switch fi.CloudSyncState {
		case efm.SyncUploaded, efm.SyncPendingUpload:
			if _, err := q.ExecContext(ctx,
				"UPDATE file_info SET cloud_sync_state = ? WHERE id = ?", efm.SyncPendingDelete, fiID); err != nil {
				return nil, efm.NewDBError("marking file info for cloud deletion", err)
			}
			fi.CloudSyncState = efm.SyncPendingDelete
		case efm.SyncLocalOnly:
			if _, err := q.ExecContext(ctx, "DELETE FROM file_info WHERE id = ?", fiID); err != nil {
				return nil, efm.NewDBError("deleting local-only file info", err)
			}
		}
		orphans = append(orphans, fi)
	}
	return orphans, nil
}

func (r *fileSetRepo) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		inUse, err := fileSetInUse(ctx, tx, id)
		if err != nil {
			return efm.NewDBError("checking file set references", err)
		}
		if inUse {
			return efm.NewInUseError(fmt.Sprintf("file set %d is referenced by a release item", id))
		}
		// membership, system and release links cascade
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_set WHERE id = ?", id); err != nil {
			return efm.NewDBError(fmt.Sprintf("deleting file set %d", id), err)
		}
		return nil
	})
}

func fileSetInUse(ctx context.Context, q queryer, id int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM release_item_file_set WHERE file_set_id = ?)", id).Scan(&exists)
	return exists, err
}

func (r *fileSetRepo) IsInUse(ctx context.Context, id int64) (bool, error) {
	inUse, err := fileSetInUse(ctx, r.db, id)
	if err != nil {
		return false, efm.NewDBError(fmt.Sprintf("checking references to file set %d", id), err)
	}
	return inUse, nil
}

func (r *fileSetRepo) FindByChecksumSet(ctx context.Context, sha1s []efm.Checksum) ([]*efm.FileSet, error) {
	unique := make(map[efm.Checksum]bool, len(sha1s))
	args := make([]any, 0, len(sha1s)+2)
	for _, c := range sha1s {
		if !unique[c] {
			unique[c] = true
			args = append(args, c)
		}
	}
	if len(unique) == 0 {
		return nil, nil
	}
	if len(unique) > maxQueryParams {
		return nil, efm.NewInvalidInputError(fmt.Sprintf("too many checksums in one set: %d", len(unique)))
	}
	n := len(unique)
	args = append(args, n, n)

	// A set matches when its distinct member hashes are exactly the list.
	// The same content stored under two names counts once.
	out, err := queryFileSets(ctx, r.db,
		`SELECT `+fileSetColumns+` FROM file_set fs
		 WHERE fs.id IN (
		     SELECT m.file_set_id FROM file_set_file_info m
		     JOIN file_info fi ON fi.id = m.file_info_id
		     GROUP BY m.file_set_id
		     HAVING COUNT(DISTINCT CASE WHEN fi.sha1 IN (`+placeholders(n)+`) THEN fi.sha1 END) = ?
		        AND COUNT(DISTINCT fi.sha1) = ?
		 )
		 ORDER BY fs.id`, args...)
	if err != nil {
		return nil, efm.NewDBError("finding file sets by checksum set", err)
	}
	return out, nil
}

func (r *fileSetRepo) MigrateFileTypes(ctx context.Context, plan efm.MigrationPlan) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for fiID, to := range plan.FileInfoIDs {
			if _, err := tx.ExecContext(ctx,
				"UPDATE file_info SET file_type = ? WHERE id = ?", to, fiID); err != nil {
				return efm.NewDBError(fmt.Sprintf("retyping file info %d", fiID), err)
			}
		}

		for _, m := range plan.FileSets {
			if _, err := tx.ExecContext(ctx,
				"UPDATE file_set SET file_type = ? WHERE id = ?", m.To, m.FileSetID); err != nil {
				return efm.NewDBError(fmt.Sprintf("retyping file set %d", m.FileSetID), err)
			}
			if m.Item == nil {
				continue
			}
			if err := ensureReleaseItems(ctx, tx, m.FileSetID, *m.Item); err != nil {
				return err
			}
		}
		return nil
	})
}

// ensureReleaseItems gives every release linked to the set an item of the
// given type that references the set, unless one already does.
func ensureReleaseItems(ctx context.Context, q queryer, fileSetID int64, itemType efm.ReleaseItemType) error {
	releaseIDs, err := queryIDs(ctx, q,
		"SELECT release_id FROM release_file_set WHERE file_set_id = ? ORDER BY release_id", fileSetID)
	if err != nil {
		return efm.NewDBError("listing releases of file set", err)
	}

	for _, relID := range releaseIDs {
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS (
			     SELECT 1 FROM release_item ri
			     JOIN release_item_file_set rifs ON rifs.release_item_id = ri.id
			     WHERE ri.release_id = ? AND ri.item_type = ? AND rifs.file_set_id = ?
			 )`, relID, itemType, fileSetID).Scan(&exists)
		if err != nil {
			return efm.NewDBError("checking release items", err)
		}
		if exists {
			continue
		}
		if _, err := insertReleaseItem(ctx, q, relID, itemType, "", []int64{fileSetID}); err != nil {
			return efm.NewDBError("creating release item", err)
		}
	}
	return nil
}
