// Package store persists the bot's mutable session state to a local JSON
// file. The file is the single shared mutable resource of the process; the
// session controller owns all writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m3rciful/predictbot/core/logger"
	"log/slog"
)

// Announcement media kinds.
const (
	AnnouncementText      = "text"
	AnnouncementPhoto     = "photo"
	AnnouncementAnimation = "animation"
	AnnouncementVideo     = "video"
)

// DefaultIntervalSpec fires a tick at second 5 of every second minute.
const DefaultIntervalSpec = "5 */2 * * * *"

// Announcement is a session start/end message: plain text or a media
// reference (Telegram file id) with an optional caption.
type Announcement struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Caption string `json:"caption,omitempty"`
}

// ValidAnnouncementType reports whether t names a supported announcement kind.
func ValidAnnouncementType(t string) bool {
	switch t {
	case AnnouncementText, AnnouncementPhoto, AnnouncementAnimation, AnnouncementVideo:
		return true
	}
	return false
}

// State is the persisted session record. SessionEndTime is set exactly while
// SessionActive is true.
type State struct {
	SessionActive  bool             `json:"session_active"`
	SessionEndTime *time.Time       `json:"session_end_time,omitempty"`
	IntervalSpec   string           `json:"interval_spec"`
	TargetChannel  int64            `json:"target_channel,omitempty"`
	BearerToken    string           `json:"bearer_token,omitempty"`
	KnownChannels  map[int64]string `json:"known_channels"`
	StartMessage   *Announcement    `json:"start_message,omitempty"`
	EndMessage     *Announcement    `json:"end_message,omitempty"`
}

// Store reads and writes the state file. Save is atomic: the new content is
// written to a temp file and renamed over the old one.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store bound to the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file. A missing file yields a fresh default state; a
// corrupt file is an error the caller should treat as fatal.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(context.Background(), "store", "state.init",
			slog.String("path", s.path),
		)
		return defaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	if st.KnownChannels == nil {
		st.KnownChannels = make(map[int64]string)
	}
	if st.IntervalSpec == "" {
		st.IntervalSpec = DefaultIntervalSpec
	}
	logger.Info(context.Background(), "store", "state.load",
		slog.String("path", s.path),
		slog.Bool("session_active", st.SessionActive),
		slog.Int("count", len(st.KnownChannels)),
	)
	return &st, nil
}

// Save writes the state atomically.
func (s *Store) Save(st *State) error {
	if st == nil {
		return errors.New("store: nil state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}

	logger.Debug(context.Background(), "store", "state.save",
		slog.String("path", s.path),
	)
	return nil
}

func defaultState() *State {
	return &State{
		IntervalSpec:  DefaultIntervalSpec,
		KnownChannels: make(map[int64]string),
	}
}
