package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/predictbot/predict"
	"github.com/m3rciful/predictbot/store"
)

type fakeMessenger struct {
	mu            sync.Mutex
	announcements []store.Announcement
	predictions   []string
	ownerNotes    []string
	sendErr       error
}

func (m *fakeMessenger) SendAnnouncement(_ context.Context, _ int64, a store.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.announcements = append(m.announcements, a)
	return nil
}

func (m *fakeMessenger) SendPrediction(_ context.Context, _ int64, period, pick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.predictions = append(m.predictions, period+":"+pick)
	return nil
}

func (m *fakeMessenger) NotifyOwner(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerNotes = append(m.ownerNotes, text)
	return nil
}

func (m *fakeMessenger) snapshot() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.announcements), len(m.predictions), len(m.ownerNotes)
}

type fakePredictor struct {
	pick Pick
	err  error
	// hook runs inside GenerateNextPick, before the result is returned.
	hook func()
}

func (p *fakePredictor) GenerateNextPick(context.Context, string) (Pick, error) {
	if p.hook != nil {
		p.hook()
	}
	return p.pick, p.err
}

type fakeStore struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (s *fakeStore) Save(*store.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	return nil
}

type fakeScheduler struct {
	mu          sync.Mutex
	validateErr error
	armedSpec   string
	armCount    int
	disarms     int
	tick        func()
}

func (s *fakeScheduler) Validate(string) error {
	return s.validateErr
}

func (s *fakeScheduler) Arm(spec string, tick func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armedSpec = spec
	s.armCount++
	s.tick = tick
	return nil
}

func (s *fakeScheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarms++
	s.tick = nil
}

func (s *fakeScheduler) fire() {
	s.mu.Lock()
	tick := s.tick
	s.mu.Unlock()
	if tick != nil {
		tick()
	}
}

type harness struct {
	ctrl      *Controller
	st        *store.State
	messenger *fakeMessenger
	predictor *fakePredictor
	persist   *fakeStore
	sched     *fakeScheduler

	now       time.Time
	expiry    func()
	expiryDur time.Duration
}

func newHarness(t *testing.T, st *store.State) *harness {
	t.Helper()
	h := &harness{
		st:        st,
		messenger: &fakeMessenger{},
		predictor: &fakePredictor{pick: Pick{LatestPeriod: "1000", Recommendation: "BIG"}},
		persist:   &fakeStore{},
		sched:     &fakeScheduler{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	ctrl, err := New(Options{
		State:     st,
		Store:     h.persist,
		Messenger: h.messenger,
		Predictor: h.predictor,
		Scheduler: h.sched,
		Now:       func() time.Time { return h.now },
		AfterFunc: func(d time.Duration, f func()) *time.Timer {
			h.expiry = f
			h.expiryDur = d
			return time.NewTimer(24 * time.Hour)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func configuredState() *store.State {
	return &store.State{
		IntervalSpec:  store.DefaultIntervalSpec,
		TargetChannel: -100123,
		BearerToken:   "token-1",
		KnownChannels: map[int64]string{-100123: "Signals"},
		StartMessage:  &store.Announcement{Type: store.AnnouncementText, Content: "session open"},
		EndMessage:    &store.Announcement{Type: store.AnnouncementText, Content: "session closed"},
	}
}

func TestStartSessionActivates(t *testing.T) {
	h := newHarness(t, configuredState())

	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if !h.st.SessionActive {
		t.Fatal("expected active session")
	}
	wantEnd := h.now.Add(30 * time.Minute)
	if h.st.SessionEndTime == nil || !h.st.SessionEndTime.Equal(wantEnd) {
		t.Fatalf("end time = %v, want %v", h.st.SessionEndTime, wantEnd)
	}
	if h.sched.armCount != 1 || h.sched.armedSpec != store.DefaultIntervalSpec {
		t.Fatalf("armed %d times with %q", h.sched.armCount, h.sched.armedSpec)
	}
	if h.expiryDur != 30*time.Minute {
		t.Fatalf("expiry timer = %v, want 30m", h.expiryDur)
	}
	ann, _, _ := h.messenger.snapshot()
	if ann != 1 {
		t.Fatalf("announcements = %d, want 1", ann)
	}
	if h.persist.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.persist.saves)
	}
}

func TestStartSessionRequiresConfiguration(t *testing.T) {
	st := configuredState()
	st.TargetChannel = 0
	h := newHarness(t, st)

	if err := h.ctrl.StartSession(context.Background(), 30); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	st = configuredState()
	st.BearerToken = "   "
	h = newHarness(t, st)
	if err := h.ctrl.StartSession(context.Background(), 30); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestStartSessionRejectsBadDuration(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("err = %v, want ErrInvalidDuration", err)
	}
	if err := h.ctrl.StartSession(context.Background(), -5); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("err = %v, want ErrInvalidDuration", err)
	}
}

func TestStartSessionWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := h.ctrl.StartSession(context.Background(), 60); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if h.sched.armCount != 1 {
		t.Fatalf("armCount = %d, want 1", h.sched.armCount)
	}
	wantEnd := h.now.Add(30 * time.Minute)
	if !h.st.SessionEndTime.Equal(wantEnd) {
		t.Fatalf("end time changed to %v", h.st.SessionEndTime)
	}
}

func TestStopSessionClearsStateAndAnnounces(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.ctrl.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if h.st.SessionActive {
		t.Fatal("expected inactive session")
	}
	if h.st.SessionEndTime != nil {
		t.Fatal("expected cleared end time")
	}
	if h.sched.disarms == 0 {
		t.Fatal("expected scheduler disarm")
	}
	ann, _, _ := h.messenger.snapshot()
	if ann != 2 { // start + end announcements
		t.Fatalf("announcements = %d, want 2", ann)
	}
}

func TestStopInactiveSessionIsNoop(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	ann, _, _ := h.messenger.snapshot()
	if ann != 0 || h.persist.saves != 0 {
		t.Fatalf("unexpected side effects: ann=%d saves=%d", ann, h.persist.saves)
	}
}

func TestTickDeliversIncrementedPeriod(t *testing.T) {
	h := newHarness(t, configuredState())
	h.predictor.pick = Pick{LatestPeriod: "20250601123", Recommendation: "SMALL"}
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.sched.fire()

	h.messenger.mu.Lock()
	defer h.messenger.mu.Unlock()
	if len(h.messenger.predictions) != 1 {
		t.Fatalf("predictions = %d, want 1", len(h.messenger.predictions))
	}
	if got := h.messenger.predictions[0]; got != "20250601124:SMALL" {
		t.Fatalf("prediction = %q", got)
	}
}

func TestTickHandlesPeriodsBeyondFloat64(t *testing.T) {
	h := newHarness(t, configuredState())
	// 2^53 + 1: would round under float64 arithmetic.
	h.predictor.pick = Pick{LatestPeriod: "9007199254740993", Recommendation: "BIG"}
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.sched.fire()

	h.messenger.mu.Lock()
	defer h.messenger.mu.Unlock()
	if got := h.messenger.predictions[0]; got != "9007199254740994:BIG" {
		t.Fatalf("prediction = %q", got)
	}
}

func TestTickUnauthorizedStopsWithoutEndAnnouncement(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.predictor.err = &predict.Error{Kind: predict.KindUnauthorized, Err: errors.New("upstream status 401")}

	h.sched.fire()

	if h.st.SessionActive {
		t.Fatal("expected session stopped after credential failure")
	}
	ann, preds, notes := h.messenger.snapshot()
	if ann != 1 { // only the start announcement
		t.Fatalf("announcements = %d, want 1", ann)
	}
	if preds != 0 {
		t.Fatalf("predictions = %d, want 0", preds)
	}
	if notes != 1 {
		t.Fatalf("owner notes = %d, want 1", notes)
	}
}

func TestTickTransientErrorKeepsSession(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.predictor.err = &predict.Error{Kind: predict.KindNetwork, Err: errors.New("connect timeout")}

	h.sched.fire()

	if !h.st.SessionActive {
		t.Fatal("expected session to survive a transient failure")
	}
	_, preds, notes := h.messenger.snapshot()
	if preds != 0 || notes != 1 {
		t.Fatalf("preds=%d notes=%d, want 0 and 1", preds, notes)
	}
}

func TestInFlightTickDiscardedAfterStop(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Stop the session while the upstream call is in flight.
	h.predictor.hook = func() {
		if err := h.ctrl.StopSession(context.Background()); err != nil {
			t.Errorf("stop during tick: %v", err)
		}
	}

	h.sched.fire()

	_, preds, _ := h.messenger.snapshot()
	if preds != 0 {
		t.Fatalf("predictions = %d, want 0 after stop", preds)
	}
}

func TestExpiryEndsSession(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.expiry == nil {
		t.Fatal("expected armed expiry timer")
	}

	h.expiry()

	if h.st.SessionActive {
		t.Fatal("expected inactive session after expiry")
	}
	ann, _, notes := h.messenger.snapshot()
	if ann != 2 {
		t.Fatalf("announcements = %d, want 2", ann)
	}
	if notes != 1 {
		t.Fatalf("owner notes = %d, want 1", notes)
	}
}

func TestStaleExpiryIgnoredAfterRestart(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	stale := h.expiry

	if err := h.ctrl.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := h.ctrl.StartSession(context.Background(), 60); err != nil {
		t.Fatalf("restart: %v", err)
	}

	stale()

	if !h.st.SessionActive {
		t.Fatal("stale expiry must not stop the new session")
	}
}

func TestResumeRearmsFutureSession(t *testing.T) {
	st := configuredState()
	end := time.Date(2025, 6, 1, 12, 20, 0, 0, time.UTC)
	st.SessionActive = true
	st.SessionEndTime = &end
	h := newHarness(t, st)

	if err := h.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if !h.st.SessionActive {
		t.Fatal("expected session to stay active")
	}
	if h.sched.armCount != 1 {
		t.Fatalf("armCount = %d, want 1", h.sched.armCount)
	}
	if h.expiryDur != 20*time.Minute {
		t.Fatalf("expiry = %v, want 20m", h.expiryDur)
	}
	ann, _, notes := h.messenger.snapshot()
	if ann != 0 || notes != 0 {
		t.Fatalf("resume must not announce: ann=%d notes=%d", ann, notes)
	}
}

func TestResumeCleansExpiredSessionSilently(t *testing.T) {
	st := configuredState()
	end := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	st.SessionActive = true
	st.SessionEndTime = &end
	h := newHarness(t, st)

	if err := h.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if h.st.SessionActive {
		t.Fatal("expected expired session cleaned up")
	}
	if h.sched.armCount != 0 {
		t.Fatalf("armCount = %d, want 0", h.sched.armCount)
	}
	ann, _, notes := h.messenger.snapshot()
	if ann != 0 || notes != 0 {
		t.Fatalf("cleanup must be silent: ann=%d notes=%d", ann, notes)
	}
	if h.persist.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.persist.saves)
	}
}

func TestResumeInactiveIsNoop(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if h.sched.armCount != 0 || h.persist.saves != 0 {
		t.Fatalf("unexpected side effects: arms=%d saves=%d", h.sched.armCount, h.persist.saves)
	}
}

func TestSetIntervalRearmsActiveSession(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	spec := "5 */5 * * * *"
	if err := h.ctrl.SetInterval(context.Background(), spec); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}

	if h.st.IntervalSpec != spec {
		t.Fatalf("IntervalSpec = %q", h.st.IntervalSpec)
	}
	if h.sched.armCount != 2 || h.sched.armedSpec != spec {
		t.Fatalf("armCount=%d armedSpec=%q", h.sched.armCount, h.sched.armedSpec)
	}
}

func TestSetIntervalValidationFailureLeavesState(t *testing.T) {
	h := newHarness(t, configuredState())
	h.sched.validateErr = errors.New("bad spec")

	if err := h.ctrl.SetInterval(context.Background(), "nonsense"); err == nil {
		t.Fatal("expected validation error")
	}
	if h.st.IntervalSpec != store.DefaultIntervalSpec {
		t.Fatalf("IntervalSpec mutated to %q", h.st.IntervalSpec)
	}
	if h.persist.saves != 0 {
		t.Fatalf("saves = %d, want 0", h.persist.saves)
	}
}

func TestSetTargetChannelRejectsUnknown(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.SetTargetChannel(context.Background(), -999); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}
	if h.st.TargetChannel != -100123 {
		t.Fatalf("target mutated to %d", h.st.TargetChannel)
	}
}

func TestUntrackChannelClearsTarget(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.UntrackChannel(context.Background(), -100123); err != nil {
		t.Fatalf("UntrackChannel: %v", err)
	}
	if h.st.TargetChannel != 0 {
		t.Fatalf("target = %d, want 0", h.st.TargetChannel)
	}
	if _, ok := h.st.KnownChannels[-100123]; ok {
		t.Fatal("channel still in registry")
	}
}

func TestSetAnnouncementRejectsInvalid(t *testing.T) {
	h := newHarness(t, configuredState())
	err := h.ctrl.SetAnnouncement(context.Background(), SlotStart, store.Announcement{Type: "sticker", Content: "x"})
	if !errors.Is(err, ErrInvalidAnnouncement) {
		t.Fatalf("err = %v, want ErrInvalidAnnouncement", err)
	}
	err = h.ctrl.SetAnnouncement(context.Background(), SlotEnd, store.Announcement{Type: store.AnnouncementText})
	if !errors.Is(err, ErrInvalidAnnouncement) {
		t.Fatalf("err = %v, want ErrInvalidAnnouncement", err)
	}
}

func TestSetCredentialsRejectsEmpty(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.SetCredentials(context.Background(), "   "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("err = %v, want ErrEmptyToken", err)
	}
}

func TestShutdownPreservesPersistedState(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	saves := h.persist.saves

	h.ctrl.Shutdown()

	if !h.st.SessionActive {
		t.Fatal("shutdown must not deactivate the session record")
	}
	if h.sched.disarms == 0 {
		t.Fatal("expected scheduler disarm")
	}
	if h.persist.saves != saves {
		t.Fatal("shutdown must not persist")
	}
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t, configuredState())
	if err := h.ctrl.StartSession(context.Background(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.now = h.now.Add(10 * time.Minute)

	st := h.ctrl.Status()
	if !st.Active {
		t.Fatal("expected active status")
	}
	if st.Remaining != 20*time.Minute {
		t.Fatalf("remaining = %v, want 20m", st.Remaining)
	}
	if st.ChannelTitle != "Signals" {
		t.Fatalf("title = %q", st.ChannelTitle)
	}
	if !st.StartMessageSet || !st.EndMessageSet {
		t.Fatal("expected both announcements reported as set")
	}
}
