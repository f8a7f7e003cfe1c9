// Package session owns the prediction session lifecycle: the active/inactive
// state machine, the recurring tick schedule, the expiry timer, and restart
// recovery from persisted state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/m3rciful/predictbot/store"
)

// Announcement slots configurable by the owner.
type Slot string

const (
	SlotStart Slot = "start"
	SlotEnd   Slot = "end"
)

var (
	// ErrInvalidDuration rejects non-positive session durations.
	ErrInvalidDuration = errors.New("session: duration must be positive")
	// ErrNotConfigured rejects a start without a target channel and API token.
	ErrNotConfigured = errors.New("session: target channel and API token must be set first")
	// ErrUnknownChannel rejects a target outside the known channels registry.
	ErrUnknownChannel = errors.New("session: channel is not in the known channels registry")
	// ErrInvalidAnnouncement rejects unsupported announcement payloads.
	ErrInvalidAnnouncement = errors.New("session: unsupported announcement type")
	// ErrEmptyToken rejects a blank API token.
	ErrEmptyToken = errors.New("session: token must not be empty")
)

// Messenger is the outbound transport the controller drives. Implementations
// deliver to the channel or the owner; failures are reported, never fatal.
type Messenger interface {
	SendAnnouncement(ctx context.Context, chatID int64, a store.Announcement) error
	SendPrediction(ctx context.Context, chatID int64, period, pick string) error
	NotifyOwner(ctx context.Context, text string) error
}

// Pick is the predictor's verdict: the latest settled period and the
// recommendation for the one after it.
type Pick struct {
	LatestPeriod   string
	Recommendation string
}

// Predictor runs one upstream fetch-and-compute cycle.
type Predictor interface {
	GenerateNextPick(ctx context.Context, token string) (Pick, error)
}

// Store persists the session state record.
type Store interface {
	Save(st *store.State) error
}

// Scheduler arms and disarms the recurring tick job. Arm replaces any
// previously armed job.
type Scheduler interface {
	Validate(spec string) error
	Arm(spec string, tick func()) error
	Disarm()
}

// History records delivered predictions and session transitions. Recording is
// best effort and must never block the session path.
type History interface {
	RecordPrediction(ctx context.Context, epoch uint64, period, pick string)
	RecordTransition(ctx context.Context, epoch uint64, event string)
}

// NopHistory discards all records.
type NopHistory struct{}

func (NopHistory) RecordPrediction(context.Context, uint64, string, string) {}
func (NopHistory) RecordTransition(context.Context, uint64, string)         {}

// Status is a read-only snapshot for the menu layer.
type Status struct {
	Active          bool
	Remaining       time.Duration
	ChannelID       int64
	ChannelTitle    string
	IntervalSpec    string
	StartMessageSet bool
	EndMessageSet   bool
}
