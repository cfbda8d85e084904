package database

import (
	"context"
	"database/sql"
	"fmt"

	"efm-go/internal/efm"
)

type operationRepo struct {
	db    *sql.DB
	clock efm.Clock
}

func (r *operationRepo) Create(ctx context.Context, operation, parameters string) (*efm.Operation, error) {
	started := r.clock.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO operation (operation, parameters, started_at) VALUES (?, ?, ?)",
		operation, parameters, started)
	if err != nil {
		return nil, efm.NewDBError("creating operation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, efm.NewDBError("reading operation id", err)
	}
	return &efm.Operation{ID: id, Operation: operation, Parameters: parameters, StartedAt: started}, nil
}

func (r *operationRepo) Finish(ctx context.Context, id int64, status string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE operation SET finished_at = ?, status = ? WHERE id = ?",
		r.clock.Now(), status, id); err != nil {
		return efm.NewDBError(fmt.Sprintf("finishing operation %d", id), err)
	}
	return nil
}

// List returns the most recent operations first.
func (r *operationRepo) List(ctx context.Context, limit int) ([]*efm.Operation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation, parameters, started_at, finished_at, status
		 FROM operation ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, efm.NewDBError("listing operations", err)
	}
	defer rows.Close()

	var out []*efm.Operation
	for rows.Next() {
		var op efm.Operation
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &op.FinishedAt, &op.Status); err != nil {
			return nil, efm.NewDBError("scanning operation", err)
		}
		out = append(out, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("listing operations", err)
	}
	return out, nil
}
