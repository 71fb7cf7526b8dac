package sync

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

type eventLister interface {
	List(device models.Device, window Window) ([]models.Event, error)
}

type segmentRetriever interface {
	Retrieve(device models.Device, ev models.Event, segDir string) (int, string, error)
}

type pathAllocator interface {
	Allocate(deviceName string, ev models.Event) (eventDir, segDir string, err error)
}

type artifactMerger interface {
	Merge(ev models.Event, eventDir, segDir, fileList string) (string, error)
}

// Driver runs one sync cycle: for every device, list new events, download and
// decrypt each one, merge, and checkpoint. Failures are isolated per event
// and per device.
type Driver struct {
	Source    eventLister
	Store     *Store
	Retriever segmentRetriever
	Allocator pathAllocator
	Merger    artifactMerger
	Metrics   *Metrics
	Log       zerolog.Logger

	MergeEnabled bool
	// CommitOnMergeFailure treats "segments retrieved" as success: the
	// checkpoint survives a failed merge. Off means a failed merge rolls the
	// checkpoint back so the event retries next cycle.
	CommitOnMergeFailure bool
	// Now is the clock used for the listing window; tests override it.
	Now func() time.Time
}

// DeviceSummary reports one device's share of a cycle.
type DeviceSummary struct {
	Device    models.Device
	Found     int
	Processed int
	Failed    int
	Err       error // discovery failure; per-event failures are in Failed
}

// SuccessRate is Processed over Found, 1.0 when nothing was found.
func (s DeviceSummary) SuccessRate() float64 {
	if s.Found == 0 {
		return 1.0
	}
	return float64(s.Processed) / float64(s.Found)
}

// Summary aggregates a whole cycle.
type Summary struct {
	Devices []DeviceSummary
}

func (s Summary) Totals() (found, processed, failed int) {
	for _, d := range s.Devices {
		found += d.Found
		processed += d.Processed
		failed += d.Failed
	}
	return
}

// Run executes one cycle across devices. One device's failure never blocks
// another's.
func (d *Driver) Run(devices []models.Device) Summary {
	start := d.now()
	d.Metrics.Cycles.Inc()

	var sum Summary
	for _, dev := range devices {
		ds := d.syncDevice(dev)
		if ds.Err != nil {
			d.Metrics.DeviceFailures.Inc()
			d.Log.Error().Err(ds.Err).Str("did", dev.DID).Str("name", dev.Name).
				Msg("device sync failed, continuing with next device")
		} else {
			d.Log.Info().
				Str("name", dev.Name).
				Int("found", ds.Found).
				Int("processed", ds.Processed).
				Int("failed", ds.Failed).
				Float64("success_rate", ds.SuccessRate()).
				Msg("device sync complete")
		}
		sum.Devices = append(sum.Devices, ds)
	}

	d.Metrics.CycleDuration.Set(d.now().Sub(start).Seconds())
	found, processed, failed := sum.Totals()
	d.Log.Info().Int("found", found).Int("processed", processed).Int("failed", failed).
		Msg("sync cycle complete")
	return sum
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) syncDevice(dev models.Device) DeviceSummary {
	ds := DeviceSummary{Device: dev}

	events, err := d.Source.List(dev, DefaultWindow(d.now()))
	if err != nil {
		ds.Err = err
		return ds
	}

	// Dedup against the checkpoint store, keyed by fileId only.
	fresh := events[:0:0]
	for _, ev := range events {
		if !d.Store.IsProcessed(dev.DID, ev.FileID) {
			fresh = append(fresh, ev)
		}
	}
	ds.Found = len(fresh)
	d.Metrics.EventsDiscovered.Add(float64(len(fresh)))
	d.Log.Info().Str("name", dev.Name).Int("new_events", len(fresh)).Int("listed", len(events)).
		Msg("events discovered")

	for _, ev := range fresh {
		if err := d.processEvent(dev, ev); err != nil {
			ds.Failed++
			d.Metrics.EventsFailed.Inc()
			d.Log.Error().Err(err).Str("file_id", ev.FileID).Msg("event failed, continuing with next event")
			continue
		}
		ds.Processed++
		d.Metrics.EventsProcessed.Inc()
	}
	return ds
}

// processEvent runs one event through allocate → retrieve → commit → merge.
// The checkpoint entry is written through immediately after retrieval; a
// failed merge rolls it back unless CommitOnMergeFailure keeps it.
func (d *Driver) processEvent(dev models.Device, ev models.Event) error {
	d.Log.Info().Str("file_id", ev.FileID).Msg(ev.Describe() + ", downloading")

	eventDir, segDir, err := d.Allocator.Allocate(dev.Name, ev)
	if err != nil {
		return err
	}

	segments, fileList, err := d.Retriever.Retrieve(dev, ev, segDir)
	if err != nil {
		// Retried from scratch next cycle; drop the partial directory so the
		// retry does not allocate a pointless _1 sibling.
		d.discardEventDir(eventDir)
		return err
	}
	d.Metrics.SegmentsDownloaded.Add(float64(segments))

	if err := d.Store.Commit(dev.DID, ev); err != nil {
		d.discardEventDir(eventDir)
		return fmt.Errorf("checkpoint commit for %s: %w", ev.FileID, err)
	}

	artifact := eventDir
	if d.MergeEnabled && segments > 0 {
		merged, err := d.Merger.Merge(ev, eventDir, segDir, fileList)
		if err != nil {
			if !d.CommitOnMergeFailure {
				d.Store.Rollback(dev.DID, ev.FileID)
				return err
			}
			d.Log.Warn().Err(err).Str("file_id", ev.FileID).
				Msg("merge failed, keeping checkpoint (commit_on_merge_failure)")
		} else {
			artifact = merged
		}
	}

	d.Log.Info().Str("path", artifact).Msg("video saved")
	return nil
}

// discardEventDir drops the directory of an event that will be retried from
// scratch, so the retry does not allocate a pointless _1 sibling.
func (d *Driver) discardEventDir(eventDir string) {
	if err := os.RemoveAll(eventDir); err != nil {
		d.Log.Warn().Err(err).Str("dir", eventDir).Msg("removing abandoned event directory failed")
	}
}
