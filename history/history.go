// Package history keeps an optional audit trail of delivered predictions and
// session transitions in Postgres. It is wired only when a database section is
// configured; recording failures are logged and never surface to the session
// path.
package history

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/predictbot/core/logger"
	"log/slog"
)

const insertTimeout = 3 * time.Second

// Recorder writes audit rows through a live sqlx connection.
type Recorder struct {
	db *sqlx.DB
}

// NewRecorder wraps an established database handle.
func NewRecorder(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordPrediction stores one delivered prediction.
func (r *Recorder) RecordPrediction(ctx context.Context, epoch uint64, period, pick string) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	start := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO predictions (epoch, period, pick, created_at) VALUES ($1, $2, $3, NOW())`,
		int64(epoch), period, pick,
	)
	if err != nil {
		logger.Warn(ctx, "db", "history.prediction.fail",
			slog.Uint64("epoch", epoch),
			slog.String("period", period),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return
	}
	logger.Debug(ctx, "db", "history.prediction.ok",
		slog.Uint64("epoch", epoch),
		slog.String("period", period),
		slog.String("pick", pick),
		slog.Duration("duration", logger.Took(start)),
	)
}

// RecordTransition stores one lifecycle transition (start, stop, expire,
// expire_offline, escalate).
func (r *Recorder) RecordTransition(ctx context.Context, epoch uint64, event string) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	start := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (epoch, event, created_at) VALUES ($1, $2, NOW())`,
		int64(epoch), event,
	)
	if err != nil {
		logger.Warn(ctx, "db", "history.transition.fail",
			slog.Uint64("epoch", epoch),
			slog.String("event_name", event),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return
	}
	logger.Debug(ctx, "db", "history.transition.ok",
		slog.Uint64("epoch", epoch),
		slog.String("event_name", event),
		slog.Duration("duration", logger.Took(start)),
	)
}
