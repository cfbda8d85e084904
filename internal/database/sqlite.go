package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"efm-go/internal/database/migrations"
	"efm-go/internal/efm"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// queryer is satisfied by both *sql.DB and *sql.Tx so that row helpers can run
// inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteDatabase implements efm.Repositories using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock efm.Clock

	fileInfos      *fileInfoRepo
	fileSets       *fileSetRepo
	releases       *releaseRepo
	softwareTitles *softwareTitleRepo
	systems        *systemRepo
	emulators      *emulatorRepo
	datFiles       *datFileRepo
	settings       *settingsRepo
	operations     *operationRepo
}

// NewSQLiteDatabase opens the database at path. path can be a file path or
// ":memory:". A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock efm.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is configured by OpenConnection.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock efm.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = efm.RealClock{}
	}
	s := &SQLiteDatabase{db: db, path: path, clock: clock}
	s.fileInfos = &fileInfoRepo{db: db}
	s.fileSets = &fileSetRepo{db: db, clock: clock}
	s.releases = &releaseRepo{db: db}
	s.softwareTitles = &softwareTitleRepo{db: db}
	s.systems = &systemRepo{db: db}
	s.emulators = &emulatorRepo{db: db}
	s.datFiles = &datFileRepo{db: db}
	s.settings = &settingsRepo{db: db}
	s.operations = &operationRepo{db: db, clock: clock}
	return s
}

// OpenConnection opens and configures a SQLite connection.
// The pool is limited to a single connection: SQLite serialises writers anyway,
// an in-memory database only exists on the connection that created it, and
// the foreign key pragma is per connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite default is OFF for backward compatibility
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

func (s *SQLiteDatabase) FileInfos() efm.FileInfoRepository           { return s.fileInfos }
func (s *SQLiteDatabase) FileSets() efm.FileSetRepository             { return s.fileSets }
func (s *SQLiteDatabase) Releases() efm.ReleaseRepository             { return s.releases }
func (s *SQLiteDatabase) SoftwareTitles() efm.SoftwareTitleRepository { return s.softwareTitles }
func (s *SQLiteDatabase) Systems() efm.SystemRepository               { return s.systems }
func (s *SQLiteDatabase) Emulators() efm.EmulatorRepository           { return s.emulators }
func (s *SQLiteDatabase) DatFiles() efm.DatFileRepository             { return s.datFiles }
func (s *SQLiteDatabase) Settings() efm.SettingsRepository            { return s.settings }
func (s *SQLiteDatabase) Operations() efm.OperationRepository         { return s.operations }

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations returns a DbError unless the schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// SchemaStatus reports the applied and embedded schema versions.
func (s *SQLiteDatabase) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// MigrateUp applies pending migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return efm.NewDBError("backing up database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return efm.NewDBError("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return efm.NewDBError("committing transaction", err)
	}
	return nil
}

// dbErr wraps err as a DB error unless it already carries a kind.
func dbErr(msg string, err error) error {
	var e *efm.Error
	if errors.As(err, &e) {
		return err
	}
	return efm.NewDBError(msg, err)
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func fileTypeArgs(types []efm.FileType) []any {
	args := make([]any, len(types))
	for i, ft := range types {
		args[i] = int(ft)
	}
	return args
}

// queryIDs runs a single-column id query and collects the results.
func queryIDs(ctx context.Context, q queryer, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Compile-time check that SQLiteDatabase implements efm.Repositories.
var _ efm.Repositories = (*SQLiteDatabase)(nil)
