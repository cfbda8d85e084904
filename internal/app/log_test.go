package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var logTime = time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

func TestLogHandler_Handle(t *testing.T) {
	tests := []struct {
		name    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "message only",
			level:   slog.LevelInfo,
			message: "file set imported",
			want:    "2024-06-15T14:30:45Z\tINFO\top-1\tfile set imported\n",
		},
		{
			name:    "plain attrs",
			level:   slog.LevelDebug,
			message: "stored",
			attrs:   []slog.Attr{slog.String("key", "rom/a9993e36"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-1\tstored\tkey=rom/a9993e36\tsize=42\n",
		},
		{
			name:    "values with spaces are quoted",
			level:   slog.LevelWarn,
			message: "skipped",
			attrs:   []slog.Attr{slog.String("file", "Boulder Dash.d64"), slog.String("reason", "")},
			want:    "2024-06-15T14:30:45Z\tWARN\top-1\tskipped\tfile=\"Boulder Dash.d64\"\treason=\"\"\n",
		},
		{
			name:    "group attrs are flattened",
			level:   slog.LevelInfo,
			message: "sync",
			attrs:   []slog.Attr{slog.Group("result", slog.Int("ok", 3), slog.Int("failed", 1))},
			want:    "2024-06-15T14:30:45Z\tINFO\top-1\tsync\tresult.ok=3\tresult.failed=1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newLogHandler(&buf, "op-1", slog.LevelDebug)

			r := slog.NewRecord(logTime, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)
			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestLogHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	base := newLogHandler(&buf, "op-1", slog.LevelInfo)
	h := base.WithAttrs([]slog.Attr{slog.String("pipeline", "cloud-sync")}).WithGroup("file")

	r := slog.NewRecord(logTime, slog.LevelInfo, "uploaded", 0)
	r.AddAttrs(slog.String("key", "rom/abc"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "\tuploaded\tpipeline=cloud-sync\tfile.key=rom/abc\n"; !strings.HasSuffix(got, want) {
		t.Errorf("output = %q, want suffix %q", got, want)
	}

	buf.Reset()
	if err := base.Handle(context.Background(), slog.NewRecord(logTime, slog.LevelInfo, "plain", 0)); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "pipeline") {
		t.Errorf("WithAttrs changed the original handler: %q", buf.String())
	}
}

func TestLogHandler_Enabled(t *testing.T) {
	tests := []struct {
		min   slog.Level
		level slog.Level
		want  bool
	}{
		{slog.LevelInfo, slog.LevelDebug, false},
		{slog.LevelInfo, slog.LevelInfo, true},
		{slog.LevelInfo, slog.LevelError, true},
		{slog.LevelDebug, slog.LevelDebug, true},
	}
	for _, tt := range tests {
		h := newLogHandler(nil, "", tt.min)
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("min %v: Enabled(%v) = %v, want %v", tt.min, tt.level, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "op-7", slog.LevelInfo)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible", "set", "Game One")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "efm.log"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if strings.Contains(got, "hidden") || !strings.Contains(got, "\top-7\tvisible\tset=\"Game One\"\n") {
		t.Errorf("log file = %q", got)
	}
}
