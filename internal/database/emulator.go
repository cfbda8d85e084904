package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"efm-go/internal/efm"
)

type emulatorRepo struct {
	db *sql.DB
}

func (r *emulatorRepo) Add(ctx context.Context, e *efm.Emulator) (*efm.Emulator, error) {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Executable) == "" {
		return nil, efm.NewInvalidInputError("emulator name and executable are required")
	}

	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO emulator (name, executable, arguments, extract_files) VALUES (?, ?, ?, ?)",
			e.Name, e.Executable, e.Arguments, e.ExtractFiles)
		if err != nil {
			return efm.NewDBError("adding emulator", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return efm.NewDBError("reading emulator id", err)
		}
		for _, s := range e.Systems {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO emulator_system (emulator_id, system_id, arguments) VALUES (?, ?, ?)",
				id, s.SystemID, s.Arguments); err != nil {
				return efm.NewDBError("linking emulator system", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *emulatorRepo) query(ctx context.Context, query string, args ...any) ([]*efm.Emulator, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, efm.NewDBError("listing emulators", err)
	}

	var out []*efm.Emulator
	for rows.Next() {
		var e efm.Emulator
		if err := rows.Scan(&e.ID, &e.Name, &e.Executable, &e.Arguments, &e.ExtractFiles); err != nil {
			rows.Close()
			return nil, efm.NewDBError("scanning emulator", err)
		}
		out = append(out, &e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing emulators", err)
	}

	for _, e := range out {
		if e.Systems, err = r.systems(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *emulatorRepo) systems(ctx context.Context, emulatorID int64) ([]efm.EmulatorSystem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT system_id, arguments FROM emulator_system WHERE emulator_id = ? ORDER BY system_id", emulatorID)
	if err != nil {
		return nil, efm.NewDBError("listing emulator systems", err)
	}
	defer rows.Close()

	var out []efm.EmulatorSystem
	for rows.Next() {
		var s efm.EmulatorSystem
		if err := rows.Scan(&s.SystemID, &s.Arguments); err != nil {
			return nil, efm.NewDBError("scanning emulator system", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing emulator systems", err)
	}
	return out, nil
}

func (r *emulatorRepo) Get(ctx context.Context, id int64) (*efm.Emulator, error) {
	out, err := r.query(ctx,
		"SELECT id, name, executable, arguments, extract_files FROM emulator WHERE id = ?", id)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (r *emulatorRepo) List(ctx context.Context) ([]*efm.Emulator, error) {
	return r.query(ctx, "SELECT id, name, executable, arguments, extract_files FROM emulator ORDER BY name, id")
}

func (r *emulatorRepo) ListForSystem(ctx context.Context, systemID int64) ([]*efm.Emulator, error) {
	return r.query(ctx,
		`SELECT e.id, e.name, e.executable, e.arguments, e.extract_files FROM emulator e
		 JOIN emulator_system es ON es.emulator_id = e.id
		 WHERE es.system_id = ? ORDER BY e.name, e.id`, systemID)
}

func (r *emulatorRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM emulator WHERE id = ?", id); err != nil {
		return efm.NewDBError(fmt.Sprintf("deleting emulator %d", id), err)
	}
	return nil
}
