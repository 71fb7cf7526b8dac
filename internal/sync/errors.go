package sync

import "fmt"

// Error kinds mark the boundary at which a failure occurred. The driver uses
// them to decide whether to skip an event, skip a device, or stop the run.

// PaginationError means the event listing for one device could not be
// completed; the device's discovery is aborted, other devices continue.
type PaginationError struct {
	DeviceID string
	Err      error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("event pagination for device %s: %v", e.DeviceID, e.Err)
}
func (e *PaginationError) Unwrap() error { return e.Err }

// RetrievalError means one event's segments could not be fully fetched and
// decrypted. The event is abandoned and retried next cycle.
type RetrievalError struct {
	FileID string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieving event %s: %v", e.FileID, e.Err)
}
func (e *RetrievalError) Unwrap() error { return e.Err }

// MergeError means the external merge tool failed or produced no output.
type MergeError struct {
	FileID string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merging event %s: %v", e.FileID, e.Err)
}
func (e *MergeError) Unwrap() error { return e.Err }

// FilesystemError means storage for one event could not be allocated.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem at %s: %v", e.Path, e.Err)
}
func (e *FilesystemError) Unwrap() error { return e.Err }
