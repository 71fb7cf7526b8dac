package sync

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

// writeTool writes an executable stand-in for the transcoder.
func writeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script tool stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// layoutEvent builds dateDir/eventName/ts with two segments and a file list.
func layoutEvent(t *testing.T) (eventDir, segDir, fileList string) {
	t.Helper()
	dateDir := filepath.Join(t.TempDir(), "2026", "08", "26")
	eventDir = filepath.Join(dateDir, "120000_bell_abc123")
	segDir = filepath.Join(eventDir, "ts")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"1.ts", "2.ts"} {
		if err := os.WriteFile(filepath.Join(segDir, f), []byte(f+"-data;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fileList = filepath.Join(segDir, fileListName)
	if err := os.WriteFile(fileList, []byte("file '1.ts'\nfile '2.ts'\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return eventDir, segDir, fileList
}

// concatScript concatenates the segments into the tool's last argument,
// mimicking the transcoder's output placement.
const concatScript = `for last; do :; done
cat 1.ts 2.ts > "$last"`

func TestMerger_ProducesArtifactAndCleansUp(t *testing.T) {
	tool := writeTool(t, concatScript)
	eventDir, segDir, fileList := layoutEvent(t)

	m := NewMerger(tool, true, zerolog.Nop())
	out, err := m.Merge(ev("abc123"), eventDir, segDir, fileList)
	if err != nil {
		t.Fatal(err)
	}

	wantOut := filepath.Join(filepath.Dir(eventDir), "120000_bell_abc123.mp4")
	if out != wantOut {
		t.Fatalf("artifact path = %q, want %q", out, wantOut)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1.ts-data;2.ts-data;" {
		t.Fatalf("artifact content = %q", data)
	}
	// Cleanup removed the whole event directory, segments and file list.
	if _, err := os.Stat(eventDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("event directory not cleaned up")
	}
}

func TestMerger_KeepsEventDirWithoutCleanup(t *testing.T) {
	tool := writeTool(t, concatScript)
	eventDir, segDir, fileList := layoutEvent(t)

	m := NewMerger(tool, false, zerolog.Nop())
	if _, err := m.Merge(ev("abc123"), eventDir, segDir, fileList); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(segDir, "1.ts")); err != nil {
		t.Fatal("segments removed despite cleanup being disabled")
	}
}

func TestMerger_OutputNameIsCollisionProbed(t *testing.T) {
	tool := writeTool(t, concatScript)
	eventDir, segDir, fileList := layoutEvent(t)
	dateDir := filepath.Dir(eventDir)
	if err := os.WriteFile(filepath.Join(dateDir, "120000_bell_abc123.mp4"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMerger(tool, false, zerolog.Nop())
	out, err := m.Merge(ev("abc123"), eventDir, segDir, fileList)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(out) != "120000_bell_abc123_1.mp4" {
		t.Fatalf("collided output = %q, want _1 suffix", filepath.Base(out))
	}
	old, _ := os.ReadFile(filepath.Join(dateDir, "120000_bell_abc123.mp4"))
	if string(old) != "old" {
		t.Fatal("existing artifact was overwritten")
	}
}

func TestMerger_NonZeroExitIsMergeError(t *testing.T) {
	tool := writeTool(t, `echo "fatal: bad input" >&2
exit 1`)
	eventDir, segDir, fileList := layoutEvent(t)

	m := NewMerger(tool, true, zerolog.Nop())
	_, err := m.Merge(ev("abc123"), eventDir, segDir, fileList)
	var merr *MergeError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MergeError, got %T: %v", err, err)
	}
	// The event directory survives a failed merge for the retry.
	if _, statErr := os.Stat(segDir); statErr != nil {
		t.Fatal("segments removed after failed merge")
	}
}

func TestMerger_MissingOutputIsMergeError(t *testing.T) {
	tool := writeTool(t, "exit 0") // exits cleanly, writes nothing
	eventDir, segDir, fileList := layoutEvent(t)

	m := NewMerger(tool, true, zerolog.Nop())
	_, err := m.Merge(ev("abc123"), eventDir, segDir, fileList)
	var merr *MergeError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MergeError for missing output, got %v", err)
	}
}
