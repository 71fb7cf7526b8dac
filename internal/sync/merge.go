package sync

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// Merger drives the external transcoder that concatenates decrypted segments
// into a single playable file.
type Merger struct {
	tool    string
	cleanup bool
	log     zerolog.Logger
}

func NewMerger(tool string, cleanup bool, log zerolog.Logger) *Merger {
	return &Merger{
		tool:    tool,
		cleanup: cleanup,
		log:     log.With().Str("component", "merge").Logger(),
	}
}

// Merge concatenates the segments listed in fileList into an .mp4 in the
// date directory (two levels above the segment directory). The output name
// follows the event directory name, collision-probed against existing files.
// A non-zero exit or a missing output file is a MergeError. On success with
// cleanup enabled, the whole event directory is removed, leaving only the
// merged file.
func (m *Merger) Merge(ev models.Event, eventDir, segDir, fileList string) (string, error) {
	dateDir := filepath.Dir(eventDir)
	outPath := UniquePath(filepath.Join(dateDir, filepath.Base(eventDir)), "mp4")
	outName := filepath.Base(outPath)

	// The tool runs inside the segment directory; the output lands two
	// levels up, in the date directory.
	cmd := exec.Command(m.tool,
		"-f", "concat",
		"-i", filepath.Base(fileList),
		"-y",
		"-c:v", "libx264",
		"-c:a", "aac",
		filepath.Join("..", "..", outName),
	)
	cmd.Dir = segDir

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &MergeError{FileID: ev.FileID, Err: fmt.Errorf("%s: %w (%s)", m.tool, err, lastLine(out))}
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", &MergeError{FileID: ev.FileID, Err: fmt.Errorf("tool exited cleanly but output %s is missing", outPath)}
	}

	if m.cleanup {
		if err := os.RemoveAll(eventDir); err != nil {
			m.log.Warn().Err(err).Str("dir", eventDir).Msg("cleaning up event directory failed")
		}
	}
	m.log.Debug().Str("output", outPath).Msg("merge complete")
	return outPath, nil
}

// lastLine extracts the tail of the tool's output for error messages.
func lastLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[len(s)-200:]
	}
	return s
}
