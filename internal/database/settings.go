package database

import (
	"context"
	"database/sql"

	"efm-go/internal/efm"
)

type settingsRepo struct {
	db *sql.DB
}

func (r *settingsRepo) Get(ctx context.Context) (*efm.Settings, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, value FROM setting")
	if err != nil {
		return nil, efm.NewDBError("loading settings", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, efm.NewDBError("scanning setting", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("loading settings", err)
	}
	return efm.NewSettings(values), nil
}

// Set stores a value. An empty value removes the setting.
func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	if !efm.IsKnownSetting(key) {
		return efm.NewInvalidInputError("unknown setting: " + key)
	}

	var err error
	if value == "" {
		_, err = r.db.ExecContext(ctx, "DELETE FROM setting WHERE name = ?", key)
	} else {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO setting (name, value) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, key, value)
	}
	if err != nil {
		return efm.NewDBError("storing setting "+key, err)
	}
	return nil
}
