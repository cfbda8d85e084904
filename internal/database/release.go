package database

import (
	"context"
	"database/sql"
	"fmt"

	"efm-go/internal/efm"
)

type releaseRepo struct {
	db *sql.DB
}

func queryReleases(ctx context.Context, q queryer, query string, args ...any) ([]*efm.Release, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var out []*efm.Release
	for rows.Next() {
		var r efm.Release
		if err := rows.Scan(&r.ID, &r.Name, &r.SoftwareTitleID); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range out {
		r.SystemIDs, err = queryIDs(ctx, q,
			"SELECT system_id FROM release_system WHERE release_id = ? ORDER BY system_id", r.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func getRelease(ctx context.Context, q queryer, id int64) (*efm.Release, error) {
	out, err := queryReleases(ctx, q, "SELECT id, name, software_title_id FROM software_release WHERE id = ?", id)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// insertRelease creates a release, resolving the software title by id, by
// name, or by creating it.
func insertRelease(ctx context.Context, q queryer, in efm.NewRelease) (*efm.Release, error) {
	if in.Name == "" {
		return nil, efm.NewInvalidInputError("release name is required")
	}

	var titleID sql.NullInt64
	switch {
	case in.SoftwareTitleID != 0:
		titleID = sql.NullInt64{Int64: in.SoftwareTitleID, Valid: true}
	case in.SoftwareTitleName != "":
		title, err := findSoftwareTitleByName(ctx, q, in.SoftwareTitleName)
		if err != nil {
			return nil, err
		}
		if title == nil {
			if title, err = insertSoftwareTitle(ctx, q, in.SoftwareTitleName); err != nil {
				return nil, err
			}
		}
		titleID = sql.NullInt64{Int64: title.ID, Valid: true}
	}

	res, err := q.ExecContext(ctx, "INSERT INTO software_release (name, software_title_id) VALUES (?, ?)", in.Name, titleID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	for _, sysID := range in.SystemIDs {
		if err := linkReleaseSystem(ctx, q, id, sysID); err != nil {
			return nil, err
		}
	}
	return &efm.Release{ID: id, Name: in.Name, SoftwareTitleID: titleID, SystemIDs: in.SystemIDs}, nil
}

func linkReleaseFileSet(ctx context.Context, q queryer, releaseID, fileSetID int64) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO release_file_set (release_id, file_set_id) VALUES (?, ?)", releaseID, fileSetID)
	return err
}

func linkReleaseSystem(ctx context.Context, q queryer, releaseID, systemID int64) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO release_system (release_id, system_id) VALUES (?, ?)", releaseID, systemID)
	return err
}

func insertReleaseItem(ctx context.Context, q queryer, releaseID int64, itemType efm.ReleaseItemType, notes string, fileSetIDs []int64) (*efm.ReleaseItem, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO release_item (release_id, item_type, notes) VALUES (?, ?, ?)", releaseID, itemType, notes)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	for _, fsID := range fileSetIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO release_item_file_set (release_item_id, file_set_id) VALUES (?, ?)", id, fsID); err != nil {
			return nil, err
		}
	}
	return &efm.ReleaseItem{ID: id, ReleaseID: releaseID, ItemType: itemType, Notes: notes, FileSetIDs: fileSetIDs}, nil
}

func (r *releaseRepo) Add(ctx context.Context, in efm.NewRelease) (*efm.Release, error) {
	var rel *efm.Release
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		rel, err = insertRelease(ctx, tx, in)
		if err != nil {
			return dbErr("adding release", err)
		}
		return nil
	})
	return rel, err
}

func (r *releaseRepo) Get(ctx context.Context, id int64) (*efm.Release, error) {
	rel, err := getRelease(ctx, r.db, id)
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("getting release %d", id), err)
	}
	return rel, nil
}

func (r *releaseRepo) List(ctx context.Context) ([]*efm.Release, error) {
	out, err := queryReleases(ctx, r.db, "SELECT id, name, software_title_id FROM software_release ORDER BY name, id")
	if err != nil {
		return nil, efm.NewDBError("listing releases", err)
	}
	return out, nil
}

func (r *releaseRepo) FindByNameAndSystem(ctx context.Context, name string, systemID int64) (*efm.Release, error) {
	out, err := queryReleases(ctx, r.db,
		`SELECT r.id, r.name, r.software_title_id FROM software_release r
		 JOIN release_system rs ON rs.release_id = r.id
		 WHERE r.name = ? AND rs.system_id = ?
		 ORDER BY r.id LIMIT 1`, name, systemID)
	if err != nil {
		return nil, efm.NewDBError("finding release by name", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *releaseRepo) ListForFileSet(ctx context.Context, fileSetID int64) ([]*efm.Release, error) {
	out, err := queryReleases(ctx, r.db,
		`SELECT r.id, r.name, r.software_title_id FROM software_release r
		 JOIN release_file_set rfs ON rfs.release_id = r.id
		 WHERE rfs.file_set_id = ? ORDER BY r.id`, fileSetID)
	if err != nil {
		return nil, efm.NewDBError("listing releases for file set", err)
	}
	return out, nil
}

func (r *releaseRepo) LinkFileSet(ctx context.Context, releaseID, fileSetID int64) error {
	if err := linkReleaseFileSet(ctx, r.db, releaseID, fileSetID); err != nil {
		return efm.NewDBError("linking file set to release", err)
	}
	return nil
}

func (r *releaseRepo) LinkSystem(ctx context.Context, releaseID, systemID int64) error {
	if err := linkReleaseSystem(ctx, r.db, releaseID, systemID); err != nil {
		return efm.NewDBError("linking system to release", err)
	}
	return nil
}

func (r *releaseRepo) AddItem(ctx context.Context, releaseID int64, itemType efm.ReleaseItemType, fileSetIDs []int64) (*efm.ReleaseItem, error) {
	var item *efm.ReleaseItem
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		item, err = insertReleaseItem(ctx, tx, releaseID, itemType, "", fileSetIDs)
		if err != nil {
			return efm.NewDBError("adding release item", err)
		}
		return nil
	})
	return item, err
}

func (r *releaseRepo) Items(ctx context.Context, releaseID int64) ([]*efm.ReleaseItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, release_id, item_type, notes FROM release_item WHERE release_id = ? ORDER BY id", releaseID)
	if err != nil {
		return nil, efm.NewDBError("listing release items", err)
	}

	var out []*efm.ReleaseItem
	for rows.Next() {
		var it efm.ReleaseItem
		if err := rows.Scan(&it.ID, &it.ReleaseID, &it.ItemType, &it.Notes); err != nil {
			rows.Close()
			return nil, efm.NewDBError("scanning release item", err)
		}
		out = append(out, &it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing release items", err)
	}

	for _, it := range out {
		it.FileSetIDs, err = queryIDs(ctx, r.db,
			"SELECT file_set_id FROM release_item_file_set WHERE release_item_id = ? ORDER BY file_set_id", it.ID)
		if err != nil {
			return nil, efm.NewDBError("listing release item file sets", err)
		}
	}
	return out, nil
}

func (r *releaseRepo) Delete(ctx context.Context, id int64) error {
	// systems, file set links, items and item links cascade
	if _, err := r.db.ExecContext(ctx, "DELETE FROM software_release WHERE id = ?", id); err != nil {
		return efm.NewDBError(fmt.Sprintf("deleting release %d", id), err)
	}
	return nil
}
