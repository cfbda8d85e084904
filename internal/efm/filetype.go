package efm

import (
	"compress/flate"
	"fmt"
)

// FileType classifies the contents of a file set. The numeric values are
// persisted and must never be renumbered.
type FileType int

const (
	FileTypeRom FileType = iota
	FileTypeDiskImage
	FileTypeTapeImage
	FileTypeScreenshot
	FileTypeManual
	FileTypeCoverScan
	FileTypeMemorySnapshot
	FileTypeLoadingScreen
	FileTypeTitleScreen
	FileTypeManualScan
	FileTypeDocument
	FileTypeScan
	FileTypeMediaScan
	FileTypeInlayScan
	FileTypeBoxScan
	FileTypeBox
)

var fileTypeSlugs = map[FileType]string{
	FileTypeRom:            "rom",
	FileTypeDiskImage:      "disk_image",
	FileTypeTapeImage:      "tape_image",
	FileTypeScreenshot:     "screenshot",
	FileTypeManual:         "manual",
	FileTypeCoverScan:      "cover_scan",
	FileTypeMemorySnapshot: "memory_snapshot",
	FileTypeLoadingScreen:  "loading_screen",
	FileTypeTitleScreen:    "title_screen",
	FileTypeManualScan:     "manual_scan",
	FileTypeDocument:       "document",
	FileTypeScan:           "scan",
	FileTypeMediaScan:      "media_scan",
	FileTypeInlayScan:      "inlay_scan",
	FileTypeBoxScan:        "box_scan",
	FileTypeBox:            "box",
}

// AllFileTypes lists every file type in persisted order.
func AllFileTypes() []FileType {
	types := make([]FileType, 0, len(fileTypeSlugs))
	for ft := FileTypeRom; ft <= FileTypeBox; ft++ {
		types = append(types, ft)
	}
	return types
}

// Slug returns the stable directory name for the type.
func (ft FileType) Slug() string {
	if s, ok := fileTypeSlugs[ft]; ok {
		return s
	}
	return fmt.Sprintf("unknown_%d", int(ft))
}

func (ft FileType) String() string { return ft.Slug() }

// Valid reports whether ft is a known file type.
func (ft FileType) Valid() bool {
	_, ok := fileTypeSlugs[ft]
	return ok
}

// ParseFileType resolves a slug back to its FileType.
func ParseFileType(slug string) (FileType, error) {
	for ft, s := range fileTypeSlugs {
		if s == slug {
			return ft, nil
		}
	}
	return 0, NewInvalidInputError(fmt.Sprintf("unknown file type %q", slug))
}

// IsImage reports whether files of this type are pictures that can be thumbnailed.
func (ft FileType) IsImage() bool {
	switch ft {
	case FileTypeScreenshot, FileTypeCoverScan, FileTypeLoadingScreen, FileTypeTitleScreen,
		FileTypeManualScan, FileTypeScan, FileTypeMediaScan, FileTypeInlayScan, FileTypeBoxScan, FileTypeBox:
		return true
	}
	return false
}

// CompressionLevel returns the flate level used when packing files of this type
// into an exported archive.
func (ft FileType) CompressionLevel() int {
	switch ft {
	case FileTypeRom, FileTypeDiskImage, FileTypeTapeImage, FileTypeMemorySnapshot:
		return flate.BestCompression
	case FileTypeScreenshot, FileTypeCoverScan, FileTypeLoadingScreen, FileTypeTitleScreen,
		FileTypeManualScan, FileTypeScan, FileTypeMediaScan, FileTypeInlayScan, FileTypeBoxScan, FileTypeBox:
		// Already compressed image formats gain little from stronger levels.
		return flate.BestSpeed
	default:
		return flate.DefaultCompression
	}
}

// FileTypeMigration describes how a legacy type folds into a current one.
type FileTypeMigration struct {
	From FileType
	To   FileType
	// Item is the release item the legacy type implied, if any.
	Item *ReleaseItemType
}

func itemPtr(t ReleaseItemType) *ReleaseItemType { return &t }

var legacyMigrations = map[FileType]FileTypeMigration{
	FileTypeManual:     {From: FileTypeManual, To: FileTypeDocument, Item: itemPtr(ReleaseItemManual)},
	FileTypeManualScan: {From: FileTypeManualScan, To: FileTypeScan, Item: itemPtr(ReleaseItemManual)},
	FileTypeCoverScan:  {From: FileTypeCoverScan, To: FileTypeScan, Item: itemPtr(ReleaseItemBox)},
	FileTypeBoxScan:    {From: FileTypeBoxScan, To: FileTypeScan, Item: itemPtr(ReleaseItemBox)},
	FileTypeBox:        {From: FileTypeBox, To: FileTypeScan, Item: itemPtr(ReleaseItemBox)},
	FileTypeInlayScan:  {From: FileTypeInlayScan, To: FileTypeScan, Item: itemPtr(ReleaseItemInlayCard)},
	FileTypeMediaScan:  {From: FileTypeMediaScan, To: FileTypeScan, Item: itemPtr(ReleaseItemMedia)},
}

// IsLegacy reports whether ft is folded into a coarser type by the migration.
func (ft FileType) IsLegacy() bool {
	_, ok := legacyMigrations[ft]
	return ok
}

// Migration returns the legacy mapping for ft. ok is false for current types.
func (ft FileType) Migration() (m FileTypeMigration, ok bool) {
	m, ok = legacyMigrations[ft]
	return m, ok
}

// LegacyFileTypes returns all types the migration folds away.
func LegacyFileTypes() []FileType {
	var out []FileType
	for _, ft := range AllFileTypes() {
		if ft.IsLegacy() {
			out = append(out, ft)
		}
	}
	return out
}
