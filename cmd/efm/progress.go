package main

import (
	"fmt"
	"os"

	"efm-go/internal/efm"
)

// printProgress starts a goroutine writing progress events to stderr. Call
// wait after the operation returned; it closes the channel and drains it.
func printProgress() (chan<- efm.ProgressEvent, func()) {
	ch := make(chan efm.ProgressEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if line := describe(ev); line != "" {
				fmt.Fprintln(os.Stderr, line)
			}
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func describe(ev efm.ProgressEvent) string {
	switch e := ev.(type) {
	case efm.FileStored:
		return fmt.Sprintf("[%d/%d] stored %s", e.FileNumber, e.TotalFiles, e.FileName)
	case efm.SyncStarted:
		return fmt.Sprintf("syncing %d file(s)", e.TotalFiles)
	case efm.FileUploadCompleted:
		return fmt.Sprintf("[%d/%d] uploaded %s", e.FileNumber, e.TotalFiles, e.Key)
	case efm.FileUploadFailed:
		return fmt.Sprintf("[%d/%d] upload of %s failed: %s", e.FileNumber, e.TotalFiles, e.Key, e.Error)
	case efm.FileDeletionCompleted:
		return fmt.Sprintf("[%d/%d] deleted %s", e.FileNumber, e.TotalFiles, e.Key)
	case efm.FileDeletionFailed:
		return fmt.Sprintf("[%d/%d] deletion of %s failed: %s", e.FileNumber, e.TotalFiles, e.Key, e.Error)
	case efm.DownloadStarted:
		return fmt.Sprintf("downloading %d file(s)", e.TotalFiles)
	case efm.FileDownloadCompleted:
		return fmt.Sprintf("[%d/%d] downloaded %s", e.FileNumber, e.TotalFiles, e.Key)
	case efm.FileDownloadFailed:
		return fmt.Sprintf("[%d/%d] download of %s failed: %s", e.FileNumber, e.TotalFiles, e.Key, e.Error)
	case efm.FileSetImported:
		line := fmt.Sprintf("%s: %s", e.FileSetName, e.Status.Kind)
		for _, w := range e.Status.Warnings {
			line += "\n  " + w
		}
		if e.Status.Error != "" {
			line += ": " + e.Status.Error
		}
		return line
	default:
		return ""
	}
}
