package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/predictbot/core/logger"
	"github.com/m3rciful/predictbot/predict"
	"github.com/m3rciful/predictbot/store"
	"log/slog"
)

// Options wire the controller's collaborators. State, Store, Messenger,
// Predictor, and Scheduler are required.
type Options struct {
	State     *store.State
	Store     Store
	Messenger Messenger
	Predictor Predictor
	Scheduler Scheduler
	History   History

	// Now and AfterFunc exist for tests; nil selects the real clock.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) *time.Timer
}

// Controller is the single owner of the mutable session record. Every
// mutation happens under one mutex and is persisted before any outward
// reply, so a crash between mutation and notification recovers cleanly.
type Controller struct {
	mu        sync.Mutex
	st        *store.State
	persist   Store
	messenger Messenger
	predictor Predictor
	sched     Scheduler
	history   History
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	// epoch identifies the current session generation. Timer and tick
	// callbacks capture it; a mismatch means the result is stale and must
	// be discarded.
	epoch  uint64
	expiry *time.Timer
}

// New validates options and builds a Controller. It does not arm anything;
// call Resume once the transport is ready.
func New(opts Options) (*Controller, error) {
	if opts.State == nil {
		return nil, errors.New("session: nil state")
	}
	if opts.Store == nil {
		return nil, errors.New("session: nil store")
	}
	if opts.Messenger == nil {
		return nil, errors.New("session: nil messenger")
	}
	if opts.Predictor == nil {
		return nil, errors.New("session: nil predictor")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("session: nil scheduler")
	}
	c := &Controller{
		st:        opts.State,
		persist:   opts.Store,
		messenger: opts.Messenger,
		predictor: opts.Predictor,
		sched:     opts.Scheduler,
		history:   opts.History,
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
	}
	if c.history == nil {
		c.history = NopHistory{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.afterFunc == nil {
		c.afterFunc = time.AfterFunc
	}
	return c, nil
}

// StartSession activates a session for the given number of minutes. Starting
// while a session is already active is a silent no-op.
func (c *Controller) StartSession(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return ErrInvalidDuration
	}

	c.mu.Lock()
	if c.st.SessionActive {
		c.mu.Unlock()
		logger.Debug(ctx, "session", "start.ignored",
			slog.String("status", "skip"),
		)
		return nil
	}
	if c.st.TargetChannel == 0 || strings.TrimSpace(c.st.BearerToken) == "" {
		c.mu.Unlock()
		return ErrNotConfigured
	}
	spec := c.st.IntervalSpec
	if err := c.sched.Validate(spec); err != nil {
		c.mu.Unlock()
		return err
	}

	end := c.now().Add(time.Duration(minutes) * time.Minute)
	c.st.SessionActive = true
	c.st.SessionEndTime = &end
	c.epoch++
	epoch := c.epoch

	if err := c.persist.Save(c.st); err != nil {
		c.st.SessionActive = false
		c.st.SessionEndTime = nil
		c.mu.Unlock()
		return fmt.Errorf("session: persist start: %w", err)
	}
	if err := c.sched.Arm(spec, func() { c.runTick(epoch) }); err != nil {
		c.st.SessionActive = false
		c.st.SessionEndTime = nil
		_ = c.persist.Save(c.st)
		c.mu.Unlock()
		return err
	}
	c.armExpiryLocked(end, epoch)

	channel := c.st.TargetChannel
	startMsg := cloneAnnouncement(c.st.StartMessage)
	c.mu.Unlock()

	logger.Info(ctx, "session", "session.start",
		slog.Int("duration_min", minutes),
		slog.Uint64("epoch", epoch),
		slog.String("spec", spec),
		slog.Int64("channel_id", channel),
		slog.String("end_time", end.UTC().Format(time.RFC3339)),
	)
	c.history.RecordTransition(ctx, epoch, "start")

	if startMsg != nil {
		c.deliverAnnouncement(ctx, channel, *startMsg)
	}
	return nil
}

// StopSession ends the session manually, delivering the end announcement.
// Stopping an inactive session is a no-op.
func (c *Controller) StopSession(ctx context.Context) error {
	c.mu.Lock()
	if !c.st.SessionActive {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	channel := c.st.TargetChannel
	endMsg := cloneAnnouncement(c.st.EndMessage)
	err := c.stopLocked()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist stop: %w", err)
	}

	logger.Info(ctx, "session", "session.stop",
		slog.Uint64("epoch", epoch),
		slog.String("cause", "manual"),
	)
	c.history.RecordTransition(ctx, epoch, "stop")

	if endMsg != nil {
		c.deliverAnnouncement(ctx, channel, *endMsg)
	}
	return nil
}

// Resume re-arms a persisted in-flight session after a restart. A session
// whose end time passed while the process was down is cleaned up silently:
// no announcement, no owner notification.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if !c.st.SessionActive {
		c.mu.Unlock()
		return nil
	}
	if c.st.SessionEndTime == nil {
		err := c.stopLocked()
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("session: persist recovery: %w", err)
		}
		logger.Warn(ctx, "session", "resume.inconsistent",
			slog.String("cause", "active_without_end_time"),
		)
		return nil
	}

	remaining := c.st.SessionEndTime.Sub(c.now())
	if remaining <= 0 {
		epoch := c.epoch
		err := c.stopLocked()
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("session: persist recovery: %w", err)
		}
		logger.Info(ctx, "session", "resume.expired_offline",
			slog.Uint64("epoch", epoch),
		)
		c.history.RecordTransition(ctx, epoch, "expire_offline")
		return nil
	}

	spec := c.st.IntervalSpec
	end := *c.st.SessionEndTime
	c.epoch++
	epoch := c.epoch
	if err := c.sched.Arm(spec, func() { c.runTick(epoch) }); err != nil {
		c.mu.Unlock()
		return err
	}
	c.armExpiryLocked(end, epoch)
	c.mu.Unlock()

	logger.Info(ctx, "session", "resume.active",
		slog.Uint64("epoch", epoch),
		slog.Duration("remaining", logger.RoundMS(remaining)),
		slog.String("spec", spec),
	)
	return nil
}

// SetInterval validates and persists a new interval spec. An active
// session's recurring job is replaced so the new spec takes effect
// immediately.
func (c *Controller) SetInterval(ctx context.Context, spec string) error {
	spec = strings.TrimSpace(spec)
	if err := c.sched.Validate(spec); err != nil {
		return err
	}

	c.mu.Lock()
	c.st.IntervalSpec = spec
	if err := c.persist.Save(c.st); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("session: persist interval: %w", err)
	}
	rearm := c.st.SessionActive
	epoch := c.epoch
	if rearm {
		if err := c.sched.Arm(spec, func() { c.runTick(epoch) }); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()

	logger.Info(ctx, "session", "interval.set",
		slog.String("spec", spec),
		slog.Bool("rearmed", rearm),
	)
	return nil
}

// SetTargetChannel points announcements and predictions at a known channel.
// Channels outside the registry are rejected.
func (c *Controller) SetTargetChannel(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	if _, ok := c.st.KnownChannels[chatID]; !ok {
		c.mu.Unlock()
		return ErrUnknownChannel
	}
	c.st.TargetChannel = chatID
	err := c.persist.Save(c.st)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist channel: %w", err)
	}

	logger.Info(ctx, "session", "channel.set",
		slog.Int64("channel_id", chatID),
	)
	return nil
}

// SetCredentials stores the upstream bearer token.
func (c *Controller) SetCredentials(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	c.mu.Lock()
	c.st.BearerToken = token
	err := c.persist.Save(c.st)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}

	logger.Info(ctx, "session", "token.set")
	return nil
}

// SetAnnouncement stores the start or end announcement.
func (c *Controller) SetAnnouncement(ctx context.Context, slot Slot, a store.Announcement) error {
	if !store.ValidAnnouncementType(a.Type) || a.Content == "" {
		return ErrInvalidAnnouncement
	}

	c.mu.Lock()
	switch slot {
	case SlotStart:
		c.st.StartMessage = &a
	case SlotEnd:
		c.st.EndMessage = &a
	default:
		c.mu.Unlock()
		return ErrInvalidAnnouncement
	}
	err := c.persist.Save(c.st)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist announcement: %w", err)
	}

	logger.Info(ctx, "session", "announcement.set",
		slog.String("op", string(slot)),
		slog.String("payload", a.Type),
	)
	return nil
}

// TrackChannel records a channel where the bot gained member/admin status.
func (c *Controller) TrackChannel(ctx context.Context, chatID int64, title string) error {
	c.mu.Lock()
	c.st.KnownChannels[chatID] = title
	err := c.persist.Save(c.st)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist channels: %w", err)
	}

	logger.Info(ctx, "session", "channel.tracked",
		slog.Int64("channel_id", chatID),
	)
	return nil
}

// UntrackChannel drops a channel the bot was removed from. If it was the
// current target, the target is cleared.
func (c *Controller) UntrackChannel(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	_, known := c.st.KnownChannels[chatID]
	if !known && c.st.TargetChannel != chatID {
		c.mu.Unlock()
		return nil
	}
	delete(c.st.KnownChannels, chatID)
	if c.st.TargetChannel == chatID {
		c.st.TargetChannel = 0
	}
	err := c.persist.Save(c.st)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: persist channels: %w", err)
	}

	logger.Info(ctx, "session", "channel.untracked",
		slog.Int64("channel_id", chatID),
	)
	return nil
}

// KnownChannels returns a copy of the channel registry.
func (c *Controller) KnownChannels() map[int64]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]string, len(c.st.KnownChannels))
	for id, title := range c.st.KnownChannels {
		out[id] = title
	}
	return out
}

// Status returns a read-only snapshot for the menu layer.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Active:          c.st.SessionActive,
		ChannelID:       c.st.TargetChannel,
		IntervalSpec:    c.st.IntervalSpec,
		StartMessageSet: c.st.StartMessage != nil,
		EndMessageSet:   c.st.EndMessage != nil,
	}
	if c.st.TargetChannel != 0 {
		s.ChannelTitle = c.st.KnownChannels[c.st.TargetChannel]
	}
	if c.st.SessionActive && c.st.SessionEndTime != nil {
		remaining := c.st.SessionEndTime.Sub(c.now())
		if remaining < 0 {
			remaining = 0
		}
		s.Remaining = remaining
	}
	return s
}

// Shutdown disarms in-process timers without touching persisted state, so an
// active session survives the restart and is picked up by Resume.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched.Disarm()
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
}

// runTick executes one predict-and-announce cycle. The upstream call runs
// outside the lock; its result is discarded if the session changed while it
// was in flight.
func (c *Controller) runTick(epoch uint64) {
	ctx := logger.WithLogger(context.Background(), logger.Component("session"))

	c.mu.Lock()
	if !c.st.SessionActive || epoch != c.epoch {
		c.mu.Unlock()
		logger.Debug(ctx, "session", "tick.stale",
			slog.Uint64("epoch", epoch),
		)
		return
	}
	token := c.st.BearerToken
	channel := c.st.TargetChannel
	c.mu.Unlock()

	start := time.Now()
	pick, err := c.predictor.GenerateNextPick(ctx, token)

	c.mu.Lock()
	stale := !c.st.SessionActive || epoch != c.epoch
	c.mu.Unlock()
	if stale {
		logger.Debug(ctx, "session", "tick.discarded",
			slog.Uint64("epoch", epoch),
		)
		return
	}

	if err != nil {
		if predict.IsUnauthorized(err) {
			logger.Warn(ctx, "session", "tick.unauthorized",
				slog.Uint64("epoch", epoch),
				slog.String("err", err.Error()),
			)
			c.escalate(ctx, epoch)
			return
		}
		logger.Warn(ctx, "session", "tick.fail",
			slog.Uint64("epoch", epoch),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		_ = c.messenger.NotifyOwner(ctx, fmt.Sprintf("⚠️ Prediction error: %v", err))
		return
	}

	next, err := nextPeriod(pick.LatestPeriod)
	if err != nil {
		logger.Warn(ctx, "session", "tick.fail",
			slog.Uint64("epoch", epoch),
			slog.String("err", err.Error()),
		)
		_ = c.messenger.NotifyOwner(ctx, fmt.Sprintf("⚠️ Prediction error: %v", err))
		return
	}

	if err := c.messenger.SendPrediction(ctx, channel, next, pick.Recommendation); err != nil {
		logger.Warn(ctx, "session", "tick.deliver.fail",
			slog.Uint64("epoch", epoch),
			slog.Int64("channel_id", channel),
			slog.String("err", err.Error()),
		)
		_ = c.messenger.NotifyOwner(ctx, "⚠️ Could not deliver the prediction to your channel. Please check my permissions.")
		return
	}

	c.history.RecordPrediction(ctx, epoch, next, pick.Recommendation)
	logger.Info(ctx, "session", "tick.ok",
		slog.Uint64("epoch", epoch),
		slog.String("period", next),
		slog.String("pick", pick.Recommendation),
		slog.Duration("duration", logger.Took(start)),
	)
}

// expire handles the termination timer firing at the session end time.
func (c *Controller) expire(epoch uint64) {
	ctx := context.Background()

	c.mu.Lock()
	if !c.st.SessionActive || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	channel := c.st.TargetChannel
	endMsg := cloneAnnouncement(c.st.EndMessage)
	err := c.stopLocked()
	c.mu.Unlock()
	if err != nil {
		logger.Error(ctx, "session", "expire.persist_fail",
			slog.Uint64("epoch", epoch),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "session", "session.expire",
		slog.Uint64("epoch", epoch),
	)
	c.history.RecordTransition(ctx, epoch, "expire")

	if endMsg != nil {
		c.deliverAnnouncement(ctx, channel, *endMsg)
	}
	_ = c.messenger.NotifyOwner(ctx, "⏱ Session finished.")
}

// escalate force-stops the session after an upstream credential failure.
// No end announcement is sent; the owner is told why instead.
func (c *Controller) escalate(ctx context.Context, epoch uint64) {
	c.mu.Lock()
	if !c.st.SessionActive || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	err := c.stopLocked()
	c.mu.Unlock()
	if err != nil {
		logger.Error(ctx, "session", "escalate.persist_fail",
			slog.Uint64("epoch", epoch),
			slog.String("err", err.Error()),
		)
	}

	logger.Warn(ctx, "session", "session.escalate",
		slog.Uint64("epoch", epoch),
		slog.String("cause", "unauthorized"),
	)
	c.history.RecordTransition(ctx, epoch, "escalate")
	_ = c.messenger.NotifyOwner(ctx, "🚨 Token expired! The session has been stopped. Please set a new API token.")
}

// stopLocked cancels timers, clears the active flags, bumps the epoch so
// in-flight ticks are discarded, and persists. Callers hold c.mu.
func (c *Controller) stopLocked() error {
	c.sched.Disarm()
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	c.st.SessionActive = false
	c.st.SessionEndTime = nil
	c.epoch++
	return c.persist.Save(c.st)
}

// armExpiryLocked arms the termination timer from the absolute end time.
// Callers hold c.mu.
func (c *Controller) armExpiryLocked(end time.Time, epoch uint64) {
	if c.expiry != nil {
		c.expiry.Stop()
	}
	d := end.Sub(c.now())
	if d < 0 {
		d = 0
	}
	c.expiry = c.afterFunc(d, func() { c.expire(epoch) })
}

// deliverAnnouncement sends a configured announcement best-effort; failures
// become an owner warning, never an error to the caller.
func (c *Controller) deliverAnnouncement(ctx context.Context, channel int64, a store.Announcement) {
	if channel == 0 {
		return
	}
	if err := c.messenger.SendAnnouncement(ctx, channel, a); err != nil {
		logger.Warn(ctx, "session", "announce.fail",
			slog.Int64("channel_id", channel),
			slog.String("err", err.Error()),
		)
		_ = c.messenger.NotifyOwner(ctx, "⚠️ Could not deliver the configured message to your channel. Please check my permissions.")
	}
}

// nextPeriod computes latest+1 as an arbitrary-precision integer; upstream
// period identifiers routinely exceed 2^53.
func nextPeriod(latest string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(latest), 10)
	if !ok {
		return "", fmt.Errorf("session: period %q is not numeric", latest)
	}
	return n.Add(n, big.NewInt(1)).String(), nil
}

func cloneAnnouncement(a *store.Announcement) *store.Announcement {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
