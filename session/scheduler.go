package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/predictbot/core/logger"
	"log/slog"
)

// specParser accepts 6-field specs with a leading seconds column, matching
// the interval specs produced by the settings menu ("5 */2 * * * *").
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// CronScheduler runs the recurring tick job on a cron schedule. Each Arm
// replaces the previous job; ticks are serialized so a slow tick delays the
// next fire instead of overlapping it.
type CronScheduler struct {
	mu sync.Mutex
	c  *cron.Cron
}

// NewCronScheduler returns an unarmed scheduler.
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{}
}

// Validate checks the spec without arming anything.
func (s *CronScheduler) Validate(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("session: invalid interval spec %q: %w", spec, err)
	}
	return nil
}

// Arm replaces the current job with one firing tick on the given spec.
func (s *CronScheduler) Arm(spec string, tick func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}

	c := cron.New(
		cron.WithParser(specParser),
		cron.WithChain(cron.DelayIfStillRunning(cronLog{})),
	)
	if _, err := c.AddFunc(spec, tick); err != nil {
		return fmt.Errorf("session: invalid interval spec %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	return nil
}

// Disarm stops the current job, if any.
func (s *CronScheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
}

// cronLog adapts the structured logger to the cron.Logger interface.
type cronLog struct{}

func (cronLog) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(context.Background(), "session", "cron",
		slog.String("payload", fmt.Sprint(append([]interface{}{msg}, keysAndValues...)...)),
	)
}

func (cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error(context.Background(), "session", "cron",
		slog.String("payload", fmt.Sprint(append([]interface{}{msg}, keysAndValues...)...)),
		slog.String("err", err.Error()),
	)
}
