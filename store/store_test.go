package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.SessionActive {
		t.Fatal("default state must be inactive")
	}
	if st.IntervalSpec != DefaultIntervalSpec {
		t.Fatalf("IntervalSpec = %q", st.IntervalSpec)
	}
	if st.KnownChannels == nil {
		t.Fatal("KnownChannels must be initialized")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	end := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	want := &State{
		SessionActive:  true,
		SessionEndTime: &end,
		IntervalSpec:   "5 */5 * * * *",
		TargetChannel:  -100456,
		BearerToken:    "tok-9",
		KnownChannels:  map[int64]string{-100456: "Signals", -100789: "Backup"},
		StartMessage:   &Announcement{Type: AnnouncementPhoto, Content: "file-id-1", Caption: "go"},
		EndMessage:     &Announcement{Type: AnnouncementText, Content: "done"},
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := New(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.SessionActive || got.SessionEndTime == nil || !got.SessionEndTime.Equal(end) {
		t.Fatalf("session fields lost: %+v", got)
	}
	if got.IntervalSpec != want.IntervalSpec || got.TargetChannel != want.TargetChannel || got.BearerToken != want.BearerToken {
		t.Fatalf("config fields lost: %+v", got)
	}
	if len(got.KnownChannels) != 2 || got.KnownChannels[-100456] != "Signals" {
		t.Fatalf("channels lost: %v", got.KnownChannels)
	}
	if got.StartMessage == nil || got.StartMessage.Type != AnnouncementPhoto || got.StartMessage.Caption != "go" {
		t.Fatalf("start message lost: %+v", got.StartMessage)
	}
	if got.EndMessage == nil || got.EndMessage.Content != "done" {
		t.Fatalf("end message lost: %+v", got.EndMessage)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := New(path).Load(); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "state.json"))

	if err := s.Save(&State{IntervalSpec: DefaultIntervalSpec, KnownChannels: map[int64]string{}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestSaveNilState(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Save(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestValidAnnouncementType(t *testing.T) {
	for _, typ := range []string{AnnouncementText, AnnouncementPhoto, AnnouncementAnimation, AnnouncementVideo} {
		if !ValidAnnouncementType(typ) {
			t.Errorf("%q should be valid", typ)
		}
	}
	if ValidAnnouncementType("sticker") || ValidAnnouncementType("") {
		t.Error("unexpected valid types")
	}
}
