package efm

import "context"

// ProgressEvent is a tagged union of pipeline progress notifications.
// Events are delivered in production order through a bounded channel.
type ProgressEvent interface {
	progressEvent()
}

// Emit sends ev on ch, blocking until the consumer takes it or ctx is done.
// A nil channel drops the event.
func Emit(ctx context.Context, ch chan<- ProgressEvent, ev ProgressEvent) error {
	if ch == nil {
		return nil
	}
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return NewOperationCancelledError(ctx.Err())
	}
}

// Import events.

type FileStored struct {
	FileName   string
	SHA1       Checksum
	FileNumber int
	TotalFiles int
}

// Sync events.

type SyncStarted struct{ TotalFiles int }

type FileUploadStarted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type PartUploaded struct {
	Key  string
	Part int
}

type PartUploadFailed struct {
	Key   string
	Error string
}

type FileUploadCompleted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type FileUploadFailed struct {
	Key        string
	FileNumber int
	TotalFiles int
	Error      string
}

type FileDeletionStarted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type FileDeletionCompleted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type FileDeletionFailed struct {
	Key        string
	FileNumber int
	TotalFiles int
	Error      string
}

type SyncCompleted struct{}

// Download events.

type DownloadStarted struct{ TotalFiles int }

type FileDownloadStarted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type FileDownloadProgress struct {
	Key          string
	BytesWritten int64
	TotalBytes   int64
}

type FileDownloadCompleted struct {
	Key        string
	FileNumber int
	TotalFiles int
}

type FileDownloadFailed struct {
	Key        string
	FileNumber int
	TotalFiles int
	Error      string
}

type DownloadCompleted struct{}

// Mass-import events.

// ImportStatusKind is the outcome of importing one file set.
type ImportStatusKind int

const (
	ImportSuccess ImportStatusKind = iota
	ImportSuccessWithWarnings
	ImportFailed
)

func (k ImportStatusKind) String() string {
	switch k {
	case ImportSuccess:
		return "success"
	case ImportSuccessWithWarnings:
		return "success with warnings"
	default:
		return "failed"
	}
}

// ImportStatus carries warnings for SuccessWithWarnings and the reason for Failed.
type ImportStatus struct {
	Kind     ImportStatusKind
	Warnings []string
	Error    string
}

type FileSetImported struct {
	FileSetName string
	Status      ImportStatus
}

func (FileStored) progressEvent()            {}
func (SyncStarted) progressEvent()           {}
func (FileUploadStarted) progressEvent()     {}
func (PartUploaded) progressEvent()          {}
func (PartUploadFailed) progressEvent()      {}
func (FileUploadCompleted) progressEvent()   {}
func (FileUploadFailed) progressEvent()      {}
func (FileDeletionStarted) progressEvent()   {}
func (FileDeletionCompleted) progressEvent() {}
func (FileDeletionFailed) progressEvent()    {}
func (SyncCompleted) progressEvent()         {}
func (DownloadStarted) progressEvent()       {}
func (FileDownloadStarted) progressEvent()   {}
func (FileDownloadProgress) progressEvent()  {}
func (FileDownloadCompleted) progressEvent() {}
func (FileDownloadFailed) progressEvent()    {}
func (DownloadCompleted) progressEvent()     {}
func (FileSetImported) progressEvent()       {}
