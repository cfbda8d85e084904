// Package migrations applies the embedded schema migrations to the collection
// database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"efm-go/internal/efm"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFiles embed.FS

// Status describes where a database stands relative to the embedded schema.
// Version is zero for a database that was never migrated.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Pending returns the number of migrations not yet applied.
func (s Status) Pending() uint {
	if s.Version >= s.Latest {
		return 0
	}
	return s.Latest - s.Version
}

// Err explains why a database with this status cannot be used, or returns nil.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return efm.NewDBError(fmt.Sprintf("schema version %d is dirty, a migration failed part way", s.Version), nil)
	case s.Version == 0:
		return efm.NewDBError("database has no schema version, run the migrations first", nil)
	case s.Version < s.Latest:
		return efm.NewDBError(fmt.Sprintf("schema version %d is %d migration(s) behind %d", s.Version, s.Pending(), s.Latest), nil)
	case s.Version > s.Latest:
		return efm.NewDBError(fmt.Sprintf("schema version %d is newer than this binary (%d)", s.Version, s.Latest), nil)
	}
	return nil
}

// ReadStatus compares the applied schema version with the embedded files.
func ReadStatus(db *sql.DB) (Status, error) {
	// closing m would close the caller's db
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}

	var st Status
	st.Latest, err = LatestVersion()
	if err != nil {
		return Status{}, err
	}

	st.Version, st.Dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return st, nil
	}
	if err != nil {
		return Status{}, efm.NewDBError("reading schema version", err)
	}
	return st, nil
}

// Check returns a DbError unless the schema is exactly at the latest version.
func Check(db *sql.DB) error {
	st, err := ReadStatus(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// MigrateUp applies every pending migration. An up-to-date schema is not an error.
func MigrateUp(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return efm.NewDBError("applying migrations", err)
	}
	return nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return 0, efm.NewDBError("reading embedded migrations", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return nil, efm.NewDBError("reading embedded migrations", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, efm.NewDBError("preparing migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, efm.NewDBError("preparing migrations", err)
	}
	return m, nil
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// os.ErrNotExist after the last file
			return v, nil
		}
		v = next
	}
}
