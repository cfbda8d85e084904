package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"efm-go/internal/efm"
)

type datFileRepo struct {
	db *sql.DB
}

const datFileColumns = "id, name, description, version, sha1, system_id"

func scanDatFile(row rowScanner) (*efm.DatFile, error) {
	var d efm.DatFile
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Version, &d.SHA1, &d.SystemID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *datFileRepo) FindBySHA1(ctx context.Context, sha1 efm.Checksum) (*efm.DatFile, error) {
	d, err := scanDatFile(r.db.QueryRowContext(ctx,
		"SELECT "+datFileColumns+" FROM dat_file WHERE sha1 = ?", sha1))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, efm.NewDBError("finding dat file", err)
	}
	return d, nil
}

func (r *datFileRepo) Add(ctx context.Context, dat *efm.DatFile) (*efm.DatFile, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO dat_file (name, description, version, sha1, system_id) VALUES (?, ?, ?, ?, ?)",
			dat.Name, dat.Description, dat.Version, dat.SHA1, dat.SystemID)
		if err != nil {
			return efm.NewDBError("inserting dat file", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return efm.NewDBError("reading dat file id", err)
		}

		for _, g := range dat.Games {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO dat_game (dat_file_id, name, cloneof, description) VALUES (?, ?, ?, ?)",
				id, g.Name, g.CloneOf, g.Description)
			if err != nil {
				return efm.NewDBError("inserting dat game "+g.Name, err)
			}
			gameID, err := res.LastInsertId()
			if err != nil {
				return efm.NewDBError("reading dat game id", err)
			}
			for _, rom := range g.Roms {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO dat_rom (dat_game_id, name, size, crc, md5, sha1) VALUES (?, ?, ?, ?, ?, ?)",
					gameID, rom.Name, rom.Size, rom.CRC, rom.MD5, rom.SHA1); err != nil {
					return efm.NewDBError("inserting dat rom "+rom.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *datFileRepo) Get(ctx context.Context, id int64) (*efm.DatFile, error) {
	d, err := scanDatFile(r.db.QueryRowContext(ctx,
		"SELECT "+datFileColumns+" FROM dat_file WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, efm.NewDBError(fmt.Sprintf("getting dat file %d", id), err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.cloneof, g.description,
		        ro.name, ro.size, ro.crc, ro.md5, ro.sha1
		 FROM dat_game g
		 LEFT JOIN dat_rom ro ON ro.dat_game_id = g.id
		 WHERE g.dat_file_id = ?
		 ORDER BY g.id, ro.id`, id)
	if err != nil {
		return nil, efm.NewDBError("loading dat games", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			g                          efm.DatGame
			romName, crc, md5, romSHA1 sql.NullString
			size                       sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.CloneOf, &g.Description,
			&romName, &size, &crc, &md5, &romSHA1); err != nil {
			return nil, efm.NewDBError("scanning dat game", err)
		}
		if n := len(d.Games); n == 0 || d.Games[n-1].ID != g.ID {
			d.Games = append(d.Games, g)
		}
		if romName.Valid {
			last := &d.Games[len(d.Games)-1]
			last.Roms = append(last.Roms, efm.DatRom{
				Name: romName.String,
				Size: efm.FileSize(size.Int64),
				CRC:  crc.String,
				MD5:  md5.String,
				SHA1: romSHA1.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, efm.NewDBError("loading dat games", err)
	}
	return d, nil
}
