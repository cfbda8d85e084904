package efm

import "context"

// Repositories bundles the per-entity repositories sharing one connection pool.
// Lookups return nil with no error when nothing matches.
type Repositories interface {
	FileInfos() FileInfoRepository
	FileSets() FileSetRepository
	Releases() ReleaseRepository
	SoftwareTitles() SoftwareTitleRepository
	Systems() SystemRepository
	Emulators() EmulatorRepository
	DatFiles() DatFileRepository
	Settings() SettingsRepository
	Operations() OperationRepository

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	Close() error
}

// FileInfoRepository manages content-addressed file identities.
type FileInfoRepository interface {
	// Get returns the FileInfo with the given id.
	Get(ctx context.Context, id int64) (*FileInfo, error)

	// FindByChecksum returns the FileInfo for a single hash.
	FindByChecksum(ctx context.Context, sha1 Checksum) (*FileInfo, error)

	// FindByChecksums returns every FileInfo whose hash is in the set.
	FindByChecksums(ctx context.Context, sha1s []Checksum) ([]*FileInfo, error)

	// ListBySyncState returns all FileInfos in the given state, ordered by id.
	ListBySyncState(ctx context.Context, state CloudSyncState) ([]*FileInfo, error)

	// ListByFileTypes returns all FileInfos stored under any of the types.
	ListByFileTypes(ctx context.Context, types []FileType) ([]*FileInfo, error)

	// SetSyncState updates the cloud sync state of one FileInfo.
	SetSyncState(ctx context.Context, id int64, state CloudSyncState) error

	// RefCount returns how many file sets reference the FileInfo.
	RefCount(ctx context.Context, id int64) (int, error)

	// Delete removes the FileInfo row. It fails with InUse while any set references it.
	Delete(ctx context.Context, id int64) error
}

// FileSetRepository manages file sets and their membership.
type FileSetRepository interface {
	// Create inserts a file set, upserting any missing FileInfos, linking
	// systems and optionally a release, all in one transaction.
	Create(ctx context.Context, in NewFileSet) (*FileSet, error)

	Get(ctx context.Context, id int64) (*FileSet, error)
	List(ctx context.Context) ([]*FileSet, error)
	ListForRelease(ctx context.Context, releaseID int64) ([]*FileSet, error)
	ListByFileTypes(ctx context.Context, types []FileType) ([]*FileSet, error)

	// Files returns the members of a set with their FileInfos, in sort order.
	Files(ctx context.Context, id int64) ([]*FileSetFile, error)

	// AddFiles appends members to an existing set, upserting FileInfos.
	AddFiles(ctx context.Context, id int64, members []NewFileSetMember) error

	// Update rewrites a set's attributes and membership in one transaction.
	// FileInfos that are no longer referenced by any set are returned after
	// being tombstoned: previously uploaded or pending uploads become
	// pending-delete, local-only rows are removed.
	Update(ctx context.Context, id int64, in UpdateFileSet) ([]*FileInfo, error)

	// Delete removes the set and its membership and system links.
	Delete(ctx context.Context, id int64) error

	// IsInUse reports whether any release item references the set.
	IsInUse(ctx context.Context, id int64) (bool, error)

	// FindByChecksumSet returns sets whose member hash-set equals sha1s exactly.
	FindByChecksumSet(ctx context.Context, sha1s []Checksum) ([]*FileSet, error)

	// MigrateFileTypes applies a file type migration to the given FileInfos and
	// sets, synthesizing release items, in one transaction.
	MigrateFileTypes(ctx context.Context, plan MigrationPlan) error
}

// MigrationPlan is the database half of a file type migration.
type MigrationPlan struct {
	FileInfoIDs map[int64]FileType
	FileSets    []FileSetMigration
}

// FileSetMigration retypes one set and optionally bridges it to a release item.
type FileSetMigration struct {
	FileSetID int64
	To        FileType
	Item      *ReleaseItemType
}

// ReleaseRepository manages releases and release items.
type ReleaseRepository interface {
	Add(ctx context.Context, in NewRelease) (*Release, error)
	Get(ctx context.Context, id int64) (*Release, error)
	List(ctx context.Context) ([]*Release, error)

	// FindByNameAndSystem returns the first release with the name linked to the system.
	FindByNameAndSystem(ctx context.Context, name string, systemID int64) (*Release, error)

	// ListForFileSet returns the releases linked to a file set.
	ListForFileSet(ctx context.Context, fileSetID int64) ([]*Release, error)

	// LinkFileSet links a set to a release. Linking twice is a no-op.
	LinkFileSet(ctx context.Context, releaseID, fileSetID int64) error

	// LinkSystem links a system to a release. Linking twice is a no-op.
	LinkSystem(ctx context.Context, releaseID, systemID int64) error

	// AddItem creates a release item and links the given file sets to it.
	AddItem(ctx context.Context, releaseID int64, itemType ReleaseItemType, fileSetIDs []int64) (*ReleaseItem, error)

	Items(ctx context.Context, releaseID int64) ([]*ReleaseItem, error)

	Delete(ctx context.Context, id int64) error
}

// SoftwareTitleRepository manages software titles.
type SoftwareTitleRepository interface {
	Add(ctx context.Context, name string) (*SoftwareTitle, error)
	Get(ctx context.Context, id int64) (*SoftwareTitle, error)
	FindByName(ctx context.Context, name string) (*SoftwareTitle, error)
	List(ctx context.Context) ([]*SoftwareTitle, error)
	Update(ctx context.Context, title *SoftwareTitle) error
	Delete(ctx context.Context, id int64) error
}

// SystemRepository manages systems.
type SystemRepository interface {
	Add(ctx context.Context, name string) (*System, error)
	Get(ctx context.Context, id int64) (*System, error)
	FindByName(ctx context.Context, name string) (*System, error)
	List(ctx context.Context) ([]*System, error)
	Update(ctx context.Context, system *System) error
	// Delete fails with InUse while file sets or releases reference the system.
	Delete(ctx context.Context, id int64) error
}

// EmulatorRepository manages emulators and their per-system arguments.
type EmulatorRepository interface {
	Add(ctx context.Context, emulator *Emulator) (*Emulator, error)
	Get(ctx context.Context, id int64) (*Emulator, error)
	List(ctx context.Context) ([]*Emulator, error)
	ListForSystem(ctx context.Context, systemID int64) ([]*Emulator, error)
	Delete(ctx context.Context, id int64) error
}

// DatFileRepository stores parsed DAT catalogs.
type DatFileRepository interface {
	// FindBySHA1 returns the catalog stored for the given source text hash.
	FindBySHA1(ctx context.Context, sha1 Checksum) (*DatFile, error)

	// Add stores the catalog with all games and roms in one transaction.
	Add(ctx context.Context, dat *DatFile) (*DatFile, error)

	// Get loads a catalog with its games and roms.
	Get(ctx context.Context, id int64) (*DatFile, error)
}

// SettingsRepository reads and writes named settings.
type SettingsRepository interface {
	Get(ctx context.Context) (*Settings, error)
	Set(ctx context.Context, key, value string) error
}

// OperationRepository records mutating commands.
type OperationRepository interface {
	Create(ctx context.Context, operation, parameters string) (*Operation, error)
	Finish(ctx context.Context, id int64, status string) error
	List(ctx context.Context, limit int) ([]*Operation, error)
}
