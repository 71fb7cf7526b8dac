package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

const (
	fallbackDeviceName = "unknown_device"
	maxDeviceNameLen   = 50
	segmentSubdir      = "ts"
)

// Allocator computes collision-safe on-disk locations for event media.
type Allocator struct {
	root string
}

func NewAllocator(root string) *Allocator {
	return &Allocator{root: root}
}

// Allocate returns a fresh event directory and its segment subdirectory:
// root/<device>/<YYYY>/<MM>/<DD>/<time>_<type>_<last6>. If the path already
// exists from a prior run, the whole path is probed with _1, _2, ... until
// free. Both directories are created; failure is fatal for the event.
func (a *Allocator) Allocate(deviceName string, ev models.Event) (string, string, error) {
	base := filepath.Join(a.root, SanitizeDeviceName(deviceName), ev.DateDir(), ev.DirName())
	eventDir := UniquePath(base, "")
	segDir := filepath.Join(eventDir, segmentSubdir)

	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return "", "", &FilesystemError{Path: segDir, Err: err}
	}
	return eventDir, segDir, nil
}

// UniquePath probes base+ext, base_1+ext, base_2+ext, ... and returns the
// first path that does not exist.
func UniquePath(base, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	candidate := base + ext
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// SanitizeDeviceName makes a device name safe to use as a directory name:
// unsafe characters become underscores, surrounding spaces and dots are
// stripped, the result is capped at 50 characters, and an empty result is
// replaced with a placeholder.
func SanitizeDeviceName(name string) string {
	safe := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	safe = strings.Trim(safe, " .")
	if safe == "" {
		return fallbackDeviceName
	}
	// Cap by runes, not bytes: byte-slicing would tear a multibyte name
	// (CJK device names are the common case) into invalid UTF-8.
	if runes := []rune(safe); len(runes) > maxDeviceNameLen {
		safe = string(runes[:maxDeviceNameLen])
	}
	return safe
}
