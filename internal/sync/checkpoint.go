package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// deviceInfoKey is the reserved top-level key carrying the primary device
// block alongside the per-device maps.
const deviceInfoKey = "device_info"

// DeviceInfo describes the primary device, kept in the checkpoint document
// for auditability.
type DeviceInfo struct {
	Name  string `json:"name"`
	DID   string `json:"did"`
	Model string `json:"model"`
	Type  string `json:"type"`
}

// Store is the durable per-device set of already-downloaded events. It is the
// sole source of truth for dedup: membership is keyed by fileId only.
type Store struct {
	path       string
	data       map[string]map[string]models.Event
	deviceInfo *DeviceInfo
	log        zerolog.Logger
}

func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		data: make(map[string]map[string]models.Event),
		log:  log.With().Str("component", "checkpoint").Logger(),
	}
}

// Load reads the checkpoint document. A legacy flat document (fileId mapped
// directly to snapshots) is lifted into the per-device shape by replicating
// its entries under every known device id; the lifted shape is persisted on
// the next commit.
func (s *Store) Load(knownDeviceIDs []string) error {
	s.data = make(map[string]map[string]models.Event)
	s.deviceInfo = nil

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return fmt.Errorf("parse checkpoint: %w", err)
	}

	if info, ok := top[deviceInfoKey]; ok {
		var di DeviceInfo
		if err := json.Unmarshal(info, &di); err == nil {
			s.deviceInfo = &di
		}
		delete(top, deviceInfoKey)
	}

	if isLegacyShape(top) {
		flat := make(map[string]models.Event, len(top))
		for fileID, msg := range top {
			var ev models.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				return fmt.Errorf("parse legacy checkpoint entry %s: %w", fileID, err)
			}
			flat[fileID] = ev
		}
		for _, did := range knownDeviceIDs {
			entries := make(map[string]models.Event, len(flat))
			for fileID, ev := range flat {
				entries[fileID] = ev
			}
			s.data[did] = entries
		}
		s.log.Info().
			Int("entries", len(flat)).
			Int("devices", len(knownDeviceIDs)).
			Msg("migrated legacy checkpoint to per-device layout")
		return nil
	}

	for did, msg := range top {
		var entries map[string]models.Event
		if err := json.Unmarshal(msg, &entries); err != nil {
			return fmt.Errorf("parse checkpoint for device %s: %w", did, err)
		}
		s.data[did] = entries
	}
	return nil
}

// isLegacyShape reports whether the (device_info-stripped) document maps
// fileIds directly to event snapshots instead of device ids to maps. Legacy
// values carry a string "fileId" field.
func isLegacyShape(top map[string]json.RawMessage) bool {
	for _, msg := range top {
		var probe struct {
			FileID *string `json:"fileId"`
		}
		if err := json.Unmarshal(msg, &probe); err != nil {
			return false
		}
		return probe.FileID != nil
	}
	return false
}

// IsProcessed reports whether the event was already fully downloaded.
func (s *Store) IsProcessed(deviceID, fileID string) bool {
	_, ok := s.data[deviceID][fileID]
	return ok
}

// Commit records the event as processed and immediately persists the full
// store. Write-through bounds crash loss to the event in flight.
func (s *Store) Commit(deviceID string, ev models.Event) error {
	if s.data[deviceID] == nil {
		s.data[deviceID] = make(map[string]models.Event)
	}
	s.data[deviceID][ev.FileID] = ev
	if err := s.persist(); err != nil {
		delete(s.data[deviceID], ev.FileID)
		return err
	}
	return nil
}

// Rollback removes an entry committed for an event whose pipeline
// subsequently failed, so the next cycle retries it.
func (s *Store) Rollback(deviceID, fileID string) {
	if _, ok := s.data[deviceID][fileID]; !ok {
		return
	}
	delete(s.data[deviceID], fileID)
	if err := s.persist(); err != nil {
		s.log.Warn().Err(err).Str("file_id", fileID).Msg("persisting checkpoint rollback failed")
	}
}

// SetDeviceInfo records the primary device block.
func (s *Store) SetDeviceInfo(info DeviceInfo) {
	if s.deviceInfo != nil && *s.deviceInfo != info {
		s.log.Info().Str("name", info.Name).Msg("device info updated")
	}
	s.deviceInfo = &info
}

// Count returns the number of checkpointed events for a device.
func (s *Store) Count(deviceID string) int {
	return len(s.data[deviceID])
}

// persist overwrites the document atomically: write a temp file in the same
// directory, then rename over the target so a crash never leaves a truncated
// checkpoint.
func (s *Store) persist() error {
	doc := make(map[string]any, len(s.data)+1)
	for did, entries := range s.data {
		doc[did] = entries
	}
	if s.deviceInfo != nil {
		doc[deviceInfoKey] = s.deviceInfo
	}

	raw, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
