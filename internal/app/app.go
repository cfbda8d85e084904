package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"efm-go/internal/cloud"
	"efm-go/internal/cloudsync"
	"efm-go/internal/config"
	"efm-go/internal/credentials"
	"efm-go/internal/database"
	"efm-go/internal/efm"
	"efm-go/internal/service"
	"efm-go/internal/thumbnail"
)

// PassphraseFunc asks the user for the credentials passphrase.
type PassphraseFunc func() (string, error)

// Options tune how an EFMApp is built.
type Options struct {
	// Operation names the CLI command being run (e.g. "AddFileSet", "SyncToCloud").
	Operation  string
	Parameters string
	Passphrase PassphraseFunc
	Verbose    bool
}

// EFMApp is the application layer between the CLI and the service.
// It constructs all dependencies from config, records mutating operations and
// manages the DB lifecycle on Close.
type EFMApp struct {
	cfg        *config.Config
	db         *database.SQLiteDatabase
	creds      credentials.Store
	passphrase PassphraseFunc
	service    *service.Service
	logger     efm.Logger
	op         *Operation
	logFile    *os.File
}

// NewEFMApp creates a fully wired EFMApp from the given config.
// The database schema is migrated to the latest version.
// The caller must call Close when done.
func NewEFMApp(cfg *config.Config, opts Options) (*EFMApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, efm.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &EFMApp{
		cfg:        cfg,
		db:         db,
		passphrase: opts.Passphrase,
		logger:     &slogAdapter{l: l},
		op:         NewOperation(opts.Operation, opts.Parameters),
		logFile:    logFile,
	}
	if store, err := credentials.NewStoreFromConfig(cfg.Cloud); err == nil {
		a.creds = store
	}

	var thumbs *thumbnail.Generator
	if cfg.Download.ThumbnailSize > 0 {
		thumbs = thumbnail.NewGenerator(cfg.Download.ThumbnailSize)
	}
	a.service = service.New(service.Options{
		Repos:      db,
		Connect:    a.connect,
		Thumbnails: thumbs,
		Ignore:     cfg.Import.Ignore,
		Logger:     a.logger,
	})
	return a, nil
}

// Service returns the wired service.
func (a *EFMApp) Service() *service.Service { return a.service }

// Logger returns the application logger.
func (a *EFMApp) Logger() efm.Logger { return a.logger }

// connect builds the CloudOps for the configured provider. Credentials are
// only unlocked for S3; without stored credentials the AWS default chain is
// used.
func (a *EFMApp) connect(ctx context.Context, settings *efm.Settings) (efm.CloudOps, error) {
	opts := cloud.OptionsFromConfig(a.cfg.Cloud, nil)
	if settings.Get(efm.SettingCloudProvider) == "s3" {
		creds, err := a.loadCredentials()
		if err != nil {
			return nil, err
		}
		opts.Credentials = creds
	}
	return cloud.NewCloudOpsFromSettings(ctx, settings, opts)
}

func (a *EFMApp) loadCredentials() (*credentials.Credentials, error) {
	if a.creds == nil || !a.creds.IsConfigured() {
		return nil, nil
	}
	if a.passphrase == nil {
		return nil, efm.NewSettingsError("cloud credentials are locked and no passphrase prompt is available")
	}
	pass, err := a.passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	creds, err := a.creds.Load(pass)
	if err != nil {
		return nil, efm.NewSettingsError("unlocking cloud credentials: " + err.Error())
	}
	return creds, nil
}

// SaveCredentials encrypts cloud access keys with passphrase.
func (a *EFMApp) SaveCredentials(creds credentials.Credentials, passphrase string) error {
	if a.creds == nil {
		return fmt.Errorf("cloud credentials_path is not set")
	}
	return a.creds.Save(creds, passphrase)
}

// Mutating persists the current operation so it shows up in the history.
// Call it before running a command that changes the collection.
func (a *EFMApp) Mutating(ctx context.Context) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	dbOp, err := a.db.Operations().Create(ctx, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Fail marks the current operation as failed when err is non-nil.
func (a *EFMApp) Fail(err error) { a.op.Fail(err) }

// History returns the most recent operations.
func (a *EFMApp) History(ctx context.Context, limit int) ([]*efm.Operation, error) {
	return a.db.Operations().List(ctx, limit)
}

// Close finishes the operation record and closes all resources.
func (a *EFMApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.Operations().Finish(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// RestoreDatabase downloads the database snapshot stored by a sync run into
// the configured database path. settings describe the cloud provider, since
// they normally live in the database being restored.
func RestoreDatabase(ctx context.Context, cfg *config.Config, settings map[string]string, passphrase PassphraseFunc) error {
	a := &EFMApp{cfg: cfg, passphrase: passphrase}
	if store, err := credentials.NewStoreFromConfig(cfg.Cloud); err == nil {
		a.creds = store
	}
	ops, err := a.connect(ctx, efm.NewSettings(settings))
	if err != nil {
		return err
	}
	if err := ops.TestConnection(ctx); err != nil {
		return err
	}
	return cloudsync.RestoreDatabase(ctx, ops, cfg.Database.Path, nil)
}
