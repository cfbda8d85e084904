package efm

import "fmt"

// ErrorKind is the closed set of failure categories surfaced by pipelines and repositories.
type ErrorKind int

const (
	KindDB ErrorKind = iota + 1
	KindInUse
	KindDeserialization
	KindExport
	KindIO
	KindCloudSync
	KindSettings
	KindDownload
	KindFileImport
	KindOperationCancelled
	KindInvalidInput
)

var errorKindNames = map[ErrorKind]string{
	KindDB:                 "database error",
	KindInUse:              "in use",
	KindDeserialization:    "deserialization error",
	KindExport:             "export error",
	KindIO:                 "io error",
	KindCloudSync:          "cloud sync error",
	KindSettings:           "settings error",
	KindDownload:           "download error",
	KindFileImport:         "file import error",
	KindOperationCancelled: "operation cancelled",
	KindInvalidInput:       "invalid input",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error carries a kind plus a human readable message and optional cause.
// Two Errors are equal under errors.Is when their kinds match, whatever the payload.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrDB                 = &Error{Kind: KindDB}
	ErrInUse              = &Error{Kind: KindInUse}
	ErrDeserialization    = &Error{Kind: KindDeserialization}
	ErrExport             = &Error{Kind: KindExport}
	ErrIO                 = &Error{Kind: KindIO}
	ErrCloudSync          = &Error{Kind: KindCloudSync}
	ErrSettings           = &Error{Kind: KindSettings}
	ErrDownload           = &Error{Kind: KindDownload}
	ErrFileImport         = &Error{Kind: KindFileImport}
	ErrOperationCancelled = &Error{Kind: KindOperationCancelled}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
)

func NewDBError(msg string, err error) *Error { return &Error{Kind: KindDB, Msg: msg, Err: err} }

func NewInUseError(msg string) *Error { return &Error{Kind: KindInUse, Msg: msg} }

func NewDeserializationError(msg string, err error) *Error {
	return &Error{Kind: KindDeserialization, Msg: msg, Err: err}
}

func NewExportError(msg string, err error) *Error { return &Error{Kind: KindExport, Msg: msg, Err: err} }

func NewIOError(msg string, err error) *Error { return &Error{Kind: KindIO, Msg: msg, Err: err} }

func NewCloudSyncError(msg string, err error) *Error {
	return &Error{Kind: KindCloudSync, Msg: msg, Err: err}
}

func NewSettingsError(msg string) *Error { return &Error{Kind: KindSettings, Msg: msg} }

func NewDownloadError(msg string, err error) *Error {
	return &Error{Kind: KindDownload, Msg: msg, Err: err}
}

func NewFileImportError(msg string, err error) *Error {
	return &Error{Kind: KindFileImport, Msg: msg, Err: err}
}

func NewOperationCancelledError(err error) *Error {
	return &Error{Kind: KindOperationCancelled, Err: err}
}

func NewInvalidInputError(msg string) *Error { return &Error{Kind: KindInvalidInput, Msg: msg} }
