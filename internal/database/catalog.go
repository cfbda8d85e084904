package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"efm-go/internal/efm"
)

// Software titles

type softwareTitleRepo struct {
	db *sql.DB
}

func findSoftwareTitleByName(ctx context.Context, q queryer, name string) (*efm.SoftwareTitle, error) {
	var t efm.SoftwareTitle
	err := q.QueryRowContext(ctx,
		"SELECT id, name FROM software_title WHERE name = ? ORDER BY id LIMIT 1", name).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func insertSoftwareTitle(ctx context.Context, q queryer, name string) (*efm.SoftwareTitle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, efm.NewInvalidInputError("software title name is required")
	}
	res, err := q.ExecContext(ctx, "INSERT INTO software_title (name) VALUES (?)", name)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &efm.SoftwareTitle{ID: id, Name: name}, nil
}

func (r *softwareTitleRepo) Add(ctx context.Context, name string) (*efm.SoftwareTitle, error) {
	t, err := insertSoftwareTitle(ctx, r.db, name)
	if err != nil {
		return nil, dbErr("adding software title", err)
	}
	return t, nil
}

func (r *softwareTitleRepo) Get(ctx context.Context, id int64) (*efm.SoftwareTitle, error) {
	var t efm.SoftwareTitle
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM software_title WHERE id = ?", id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("getting software title %d", id), err)
	}
	return &t, nil
}

func (r *softwareTitleRepo) FindByName(ctx context.Context, name string) (*efm.SoftwareTitle, error) {
	t, err := findSoftwareTitleByName(ctx, r.db, name)
	if err != nil {
		return nil, efm.NewDBError("finding software title", err)
	}
	return t, nil
}

func (r *softwareTitleRepo) List(ctx context.Context) ([]*efm.SoftwareTitle, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM software_title ORDER BY name, id")
	if err != nil {
		return nil, efm.NewDBError("listing software titles", err)
	}
	defer rows.Close()

	var out []*efm.SoftwareTitle
	for rows.Next() {
		var t efm.SoftwareTitle
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, efm.NewDBError("scanning software title", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing software titles", err)
	}
	return out, nil
}

func (r *softwareTitleRepo) Update(ctx context.Context, title *efm.SoftwareTitle) error {
	if err := updateName(ctx, r.db, "software_title", title.ID, title.Name); err != nil {
		return dbErr(fmt.Sprintf("updating software title %d", title.ID), err)
	}
	return nil
}

func (r *softwareTitleRepo) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM software_release WHERE software_title_id = ?", id).Scan(&refs); err != nil {
			return efm.NewDBError("counting software title references", err)
		}
		if refs > 0 {
			return efm.NewInUseError(fmt.Sprintf("software title %d has %d releases", id, refs))
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM software_title WHERE id = ?", id); err != nil {
			return efm.NewDBError(fmt.Sprintf("deleting software title %d", id), err)
		}
		return nil
	})
}

// errNotFound reports an update that touched no rows.
var errNotFound = errors.New("not found")

// updateName renames a row in a table with (id, name) columns.
func updateName(ctx context.Context, q queryer, table string, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return efm.NewInvalidInputError("name is required")
	}
	res, err := q.ExecContext(ctx, "UPDATE "+table+" SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

// Systems

type systemRepo struct {
	db *sql.DB
}

func (r *systemRepo) Add(ctx context.Context, name string) (*efm.System, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, efm.NewInvalidInputError("system name is required")
	}
	res, err := r.db.ExecContext(ctx, "INSERT INTO system (name) VALUES (?)", name)
	if err != nil {
		return nil, efm.NewDBError("adding system "+name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, efm.NewDBError("reading system id", err)
	}
	return &efm.System{ID: id, Name: name}, nil
}

func (r *systemRepo) get(ctx context.Context, where string, arg any) (*efm.System, error) {
	var s efm.System
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM system WHERE "+where, arg).Scan(&s.ID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, efm.NewDBError("getting system", err)
	}
	return &s, nil
}

func (r *systemRepo) Get(ctx context.Context, id int64) (*efm.System, error) {
	return r.get(ctx, "id = ?", id)
}

func (r *systemRepo) FindByName(ctx context.Context, name string) (*efm.System, error) {
	return r.get(ctx, "name = ?", name)
}

func (r *systemRepo) List(ctx context.Context) ([]*efm.System, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM system ORDER BY name")
	if err != nil {
		return nil, efm.NewDBError("listing systems", err)
	}
	defer rows.Close()

	var out []*efm.System
	for rows.Next() {
		var s efm.System
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, efm.NewDBError("scanning system", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing systems", err)
	}
	return out, nil
}

func (r *systemRepo) Update(ctx context.Context, system *efm.System) error {
	if err := updateName(ctx, r.db, "system", system.ID, system.Name); err != nil {
		return dbErr(fmt.Sprintf("updating system %d", system.ID), err)
	}
	return nil
}

func (r *systemRepo) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var refs int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM file_set_system WHERE system_id = ?)
			      + (SELECT COUNT(*) FROM release_system WHERE system_id = ?)
			      + (SELECT COUNT(*) FROM emulator_system WHERE system_id = ?)
			      + (SELECT COUNT(*) FROM dat_file WHERE system_id = ?)`,
			id, id, id, id).Scan(&refs)
		if err != nil {
			return efm.NewDBError("counting system references", err)
		}
		if refs > 0 {
			return efm.NewInUseError(fmt.Sprintf("system %d is referenced %d times", id, refs))
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM system WHERE id = ?", id); err != nil {
			return efm.NewDBError(fmt.Sprintf("deleting system %d", id), err)
		}
		return nil
	})
}
