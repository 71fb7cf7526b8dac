package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

func testEvent(fileID string) models.Event {
	return models.Event{EventTime: 1700000000000, FileID: fileID, EventType: "Bell"}
}

func TestStore_CommitIsWrittenThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store := NewStore(path, zerolog.Nop())
	if err := store.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Commit("dev1", testEvent("abc123")); err != nil {
		t.Fatal(err)
	}

	// A second store reading the same file must see the entry: commit
	// persists immediately, not at shutdown.
	fresh := NewStore(path, zerolog.Nop())
	if err := fresh.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}
	if !fresh.IsProcessed("dev1", "abc123") {
		t.Fatal("committed event not visible after reload")
	}
	if fresh.IsProcessed("dev1", "other") {
		t.Fatal("unknown fileId reported as processed")
	}
	if fresh.IsProcessed("dev2", "abc123") {
		t.Fatal("fileId leaked across devices")
	}
}

func TestStore_RollbackRemovesEntryDurably(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store := NewStore(path, zerolog.Nop())
	if err := store.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Commit("dev1", testEvent("abc123")); err != nil {
		t.Fatal(err)
	}

	store.Rollback("dev1", "abc123")

	if store.IsProcessed("dev1", "abc123") {
		t.Fatal("rolled-back event still reported as processed")
	}
	fresh := NewStore(path, zerolog.Nop())
	if err := fresh.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}
	if fresh.IsProcessed("dev1", "abc123") {
		t.Fatal("rollback was not persisted")
	}

	// Rolling back a missing entry is a no-op.
	store.Rollback("dev1", "missing")
	store.Rollback("devX", "abc123")
}

func TestStore_LegacyFlatDocumentIsLifted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	legacy := map[string]any{
		"file-a": models.Event{EventTime: 1, FileID: "file-a", EventType: "Pass"},
		"file-b": models.Event{EventTime: 2, FileID: "file-b", EventType: "Bell"},
		"device_info": DeviceInfo{
			Name: "Front Door", DID: "dev1", Model: "madv.cateye.v3", Type: "doorbell",
		},
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path, zerolog.Nop())
	if err := store.Load([]string{"dev1", "dev2"}); err != nil {
		t.Fatal(err)
	}

	for _, did := range []string{"dev1", "dev2"} {
		for _, fid := range []string{"file-a", "file-b"} {
			if !store.IsProcessed(did, fid) {
				t.Fatalf("entry %s missing under device %s after migration", fid, did)
			}
		}
		if got := store.Count(did); got != 2 {
			t.Fatalf("device %s has %d entries, want 2", did, got)
		}
	}

	// Committing persists the lifted shape; a reload must not re-migrate.
	if err := store.Commit("dev1", testEvent("file-c")); err != nil {
		t.Fatal(err)
	}
	fresh := NewStore(path, zerolog.Nop())
	if err := fresh.Load([]string{"dev1", "dev2"}); err != nil {
		t.Fatal(err)
	}
	if fresh.Count("dev1") != 3 || fresh.Count("dev2") != 2 {
		t.Fatalf("per-device layout corrupted after reload: dev1=%d dev2=%d",
			fresh.Count("dev1"), fresh.Count("dev2"))
	}

	// device_info survives the round trip.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["device_info"]; !ok {
		t.Fatal("device_info block lost during migration")
	}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "data.json"), zerolog.Nop())
	if err := store.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}
	if store.IsProcessed("dev1", "anything") {
		t.Fatal("empty store reported an event as processed")
	}
}

func TestStore_SnapshotKeepsOriginalFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store := NewStore(path, zerolog.Nop())
	if err := store.Load([]string{"dev1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Commit("dev1", testEvent("abc123")); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	snap := doc["dev1"]["abc123"]
	for _, field := range []string{"eventTime", "fileId", "eventType"} {
		if _, ok := snap[field]; !ok {
			t.Fatalf("snapshot is missing field %q: %v", field, snap)
		}
	}
}
