package efm

import (
	"database/sql"
	"time"
)

// CloudSyncState tells the next cloud-sync run what to do with a blob.
type CloudSyncState int

const (
	SyncLocalOnly CloudSyncState = iota
	SyncUploaded
	SyncPendingUpload
	SyncPendingDelete
)

func (s CloudSyncState) String() string {
	switch s {
	case SyncLocalOnly:
		return "local-only"
	case SyncUploaded:
		return "uploaded"
	case SyncPendingUpload:
		return "pending-upload"
	case SyncPendingDelete:
		return "pending-delete"
	default:
		return "unknown"
	}
}

// FileInfo is the content-addressed identity of a stored blob.
type FileInfo struct {
	ID              int64
	SHA1            Checksum
	FileSize        FileSize
	ArchiveFileName string   // storage name inside the typed directory
	FileType        FileType // type under which the blob is stored
	CloudSyncState  CloudSyncState
}

// FileSet is a named, typed collection of files.
type FileSet struct {
	ID                int64
	Name              string
	CanonicalFileName string
	FileType          FileType
	Source            string
	SystemIDs         []int64
	CreatedAt         time.Time
}

// FileSetFile is a member of a file set joined with its FileInfo.
// FileName is the original name inside the set; it never equals the storage name
// unless the user imported a file literally named after its checksum.
type FileSetFile struct {
	FileSetID int64
	FileName  string
	SortOrder int
	FileInfo  FileInfo
}

// NewFileSetMember describes a file to be linked into a set. When no FileInfo
// exists for SHA1 one is created in the same transaction.
type NewFileSetMember struct {
	SHA1            Checksum
	FileSize        FileSize
	FileName        string
	ArchiveFileName string
	FileType        FileType
}

// NewFileSet is the input for creating a file set with its members.
type NewFileSet struct {
	Name              string
	CanonicalFileName string
	FileType          FileType
	Source            string
	SystemIDs         []int64
	Members           []NewFileSetMember
	// ReleaseID links the new set to an existing release when non-zero.
	ReleaseID int64
	// NewRelease creates a release for the set when non-nil and ReleaseID is zero.
	NewRelease *NewRelease
}

// UpdateFileSet replaces a set's attributes and membership.
type UpdateFileSet struct {
	Name              string
	CanonicalFileName string
	Source            string
	SystemIDs         []int64
	Members           []NewFileSetMember
}

// SoftwareTitle is the abstract work.
type SoftwareTitle struct {
	ID   int64
	Name string
}

// Release is a concrete edition of a software title.
type Release struct {
	ID              int64
	Name            string
	SoftwareTitleID sql.NullInt64
	SystemIDs       []int64
}

// NewRelease is the input for creating a release. When SoftwareTitleID is zero
// and SoftwareTitleName is set, the title is found by name or created.
type NewRelease struct {
	Name              string
	SoftwareTitleID   int64
	SoftwareTitleName string
	SystemIDs         []int64
}

// ReleaseItemType is the physical or logical component a release item represents.
type ReleaseItemType int

const (
	ReleaseItemOther ReleaseItemType = iota
	ReleaseItemBox
	ReleaseItemManual
	ReleaseItemInlayCard
	ReleaseItemMedia
)

func (t ReleaseItemType) String() string {
	switch t {
	case ReleaseItemBox:
		return "box"
	case ReleaseItemManual:
		return "manual"
	case ReleaseItemInlayCard:
		return "inlay_card"
	case ReleaseItemMedia:
		return "media"
	default:
		return "other"
	}
}

// ParseReleaseItemType resolves the String form of an item type.
func ParseReleaseItemType(s string) (ReleaseItemType, error) {
	for t := ReleaseItemOther; t <= ReleaseItemMedia; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, NewInvalidInputError("unknown release item type: " + s)
}

// ReleaseItem bridges a release to file sets describing one of its components.
type ReleaseItem struct {
	ID         int64
	ReleaseID  int64
	ItemType   ReleaseItemType
	Notes      string
	FileSetIDs []int64
}

// System is a target platform.
type System struct {
	ID   int64
	Name string
}

// Emulator runs file sets for one or more systems.
type Emulator struct {
	ID           int64
	Name         string
	Executable   string
	Arguments    string // template; %f is the selected file, %s the per-system arguments
	ExtractFiles bool
	Systems      []EmulatorSystem
}

// EmulatorSystem holds per-system emulator arguments.
type EmulatorSystem struct {
	SystemID  int64
	Arguments string
}

// DatFile is a parsed catalog. SHA1 identifies the source text.
type DatFile struct {
	ID          int64
	Name        string
	Description string
	Version     string
	SHA1        Checksum
	SystemID    sql.NullInt64
	Games       []DatGame
}

// DatGame is a catalog entry.
type DatGame struct {
	ID          int64
	Name        string
	CloneOf     string
	Description string
	Roms        []DatRom
}

// DatRom is a file expected by a catalog entry. Hashes are lowercase hex and
// may be empty when the catalog omits them.
type DatRom struct {
	Name string
	Size FileSize
	CRC  string
	MD5  string
	SHA1 string
}

// ReadFile is one logical file discovered by a metadata reader.
type ReadFile struct {
	Name string
	Size FileSize
	SHA1 Checksum
}

// Operation is a persisted record of a mutating command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}
