package migrations

import (
	"database/sql"
	"errors"
	"testing"

	"efm-go/internal/efm"

	_ "github.com/mattn/go-sqlite3"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		pending uint
		wantErr bool
	}{
		{"current", Status{Version: 2, Latest: 2}, 0, false},
		{"never migrated", Status{Latest: 2}, 2, true},
		{"behind", Status{Version: 1, Latest: 2}, 1, true},
		{"ahead", Status{Version: 3, Latest: 2}, 0, true},
		{"dirty", Status{Version: 2, Latest: 2, Dirty: true}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Pending(); got != tt.pending {
				t.Errorf("Pending() = %d, want %d", got, tt.pending)
			}
			err := tt.status.Err()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Err() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, efm.ErrDB) {
				t.Errorf("Err() = %v, want a db error", err)
			}
		})
	}
}

func TestReadStatus(t *testing.T) {
	db := openTestDB(t)

	latest, err := LatestVersion()
	if err != nil {
		t.Fatal(err)
	}
	if latest < 2 {
		t.Fatalf("LatestVersion() = %d, want at least 2", latest)
	}

	st, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() on fresh database: %v", err)
	}
	if st.Version != 0 || st.Pending() != latest {
		t.Errorf("fresh status = %+v", st)
	}
	if err := Check(db); !errors.Is(err, efm.ErrDB) {
		t.Errorf("Check() on fresh database = %v, want db error", err)
	}

	for i := 0; i < 2; i++ {
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() run %d: %v", i+1, err)
		}
	}
	st, err = ReadStatus(db)
	if err != nil {
		t.Fatal(err)
	}
	if st.Version != latest || st.Dirty {
		t.Errorf("migrated status = %+v, want version %d", st, latest)
	}
	if err := Check(db); err != nil {
		t.Errorf("Check() after migration: %v", err)
	}
}

func TestMigrateUp_Tables(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"system", "software_title", "file_info", "file_set", "file_set_file_info", "file_set_system",
		"software_release", "release_system", "release_file_set", "release_item", "release_item_file_set",
		"emulator", "emulator_system", "dat_file", "dat_game", "dat_rom", "setting", "operation",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSchema_Constraints(t *testing.T) {
	const fileInfo = `INSERT INTO file_info (sha1, file_size, archive_file_name, file_type, cloud_sync_state)
		VALUES ('a9993e364706816aba3e25717850c26c9cd0d89d', 3, 'a9993e364706816aba3e25717850c26c9cd0d89d', 0, 2)`

	tests := []struct {
		name  string
		setup []string
		stmt  string
	}{
		{
			name: "membership needs a file set",
			stmt: "INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name, sort_order) VALUES (42, 42, 'game.rom', 0)",
		},
		{
			name:  "checksum is unique",
			setup: []string{fileInfo},
			stmt:  fileInfo,
		},
		{
			name: "member name is unique within a set",
			setup: []string{
				fileInfo,
				"INSERT INTO file_set (id, name, file_name, file_type, created_at) VALUES (1, 'Game', 'game.zip', 0, datetime('now'))",
				"INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name) VALUES (1, 1, 'disk.d64')",
			},
			stmt: "INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name) VALUES (1, 1, 'disk.d64')",
		},
		{
			name: "file set system needs a system",
			setup: []string{
				"INSERT INTO file_set (id, name, file_name, file_type, created_at) VALUES (1, 'Game', 'game.zip', 0, datetime('now'))",
			},
			stmt: "INSERT INTO file_set_system (file_set_id, system_id) VALUES (1, 7)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			if err := MigrateUp(db); err != nil {
				t.Fatal(err)
			}
			for _, stmt := range tt.setup {
				if _, err := db.Exec(stmt); err != nil {
					t.Fatalf("%s: %v", stmt, err)
				}
			}
			if _, err := db.Exec(tt.stmt); err == nil {
				t.Errorf("%s: expected a constraint violation", tt.stmt)
			}
		})
	}
}

func TestSchema_FileSetCascade(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	stmts := []string{
		"INSERT INTO system (id, name) VALUES (1, 'C64')",
		"INSERT INTO file_info (id, sha1, file_size, archive_file_name, file_type) VALUES (1, 'abc', 3, 'abc', 0)",
		"INSERT INTO file_set (id, name, file_name, file_type, created_at) VALUES (1, 'Game', 'game.zip', 0, datetime('now'))",
		"INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name) VALUES (1, 1, 'game.rom')",
		"INSERT INTO file_set_system (file_set_id, system_id) VALUES (1, 1)",
		"DELETE FROM file_set WHERE id = 1",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM file_set_file_info").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("membership rows after delete = %d, want 0", n)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM file_info").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("file_info rows after delete = %d, want 1", n)
	}
}

// openTestDB opens an in-memory database with foreign keys enforced.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enabling foreign keys: %v", err)
	}
	return db
}

func TestSchema_SameContentUnderTwoNames(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	stmts := []string{
		"INSERT INTO file_info (id, sha1, file_size, archive_file_name, file_type) VALUES (1, 'abc', 3, 'abc', 1)",
		"INSERT INTO file_set (id, name, file_name, file_type, created_at) VALUES (1, 'Blank Disks', 'blank.zip', 1, datetime('now'))",
		"INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name, sort_order) VALUES (1, 1, 'disk1.d64', 0)",
		"INSERT INTO file_set_file_info (file_set_id, file_info_id, file_name, sort_order) VALUES (1, 1, 'disk2.d64', 1)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM file_set_file_info WHERE file_set_id = 1").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("membership rows = %d, want 2", n)
	}
}
