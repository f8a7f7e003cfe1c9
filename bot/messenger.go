// Package bot implements the Telegram surface: outbound delivery to the
// channel and the owner, the inline-button control menu, conversational
// prompts, and channel membership tracking.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/predictbot/core/logger"
	"github.com/m3rciful/predictbot/store"
	"log/slog"
)

// ErrNotBound is returned when a send is attempted before the transport is up.
var ErrNotBound = errors.New("bot: transport not bound yet")

// Messenger delivers session output over a live bot handle. The handle is
// bound once the transport starts; proactive sends before that fail with
// ErrNotBound.
type Messenger struct {
	mu      sync.RWMutex
	bot     *tele.Bot
	ownerID int64
}

// NewMessenger creates an unbound Messenger addressed to the given owner.
func NewMessenger(ownerID int64) *Messenger {
	return &Messenger{ownerID: ownerID}
}

// Bind attaches the live bot handle. Called from the transport start hook.
func (m *Messenger) Bind(b *tele.Bot) {
	m.mu.Lock()
	m.bot = b
	m.mu.Unlock()
}

func (m *Messenger) handle() (*tele.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bot == nil {
		return nil, ErrNotBound
	}
	return m.bot, nil
}

// SendAnnouncement delivers a configured start/end announcement to a chat.
func (m *Messenger) SendAnnouncement(ctx context.Context, chatID int64, a store.Announcement) error {
	b, err := m.handle()
	if err != nil {
		return err
	}

	to := tele.ChatID(chatID)
	switch a.Type {
	case store.AnnouncementText:
		_, err = b.Send(to, a.Content)
	case store.AnnouncementPhoto:
		_, err = b.Send(to, &tele.Photo{File: tele.File{FileID: a.Content}, Caption: a.Caption})
	case store.AnnouncementAnimation:
		_, err = b.Send(to, &tele.Animation{File: tele.File{FileID: a.Content}, Caption: a.Caption})
	case store.AnnouncementVideo:
		_, err = b.Send(to, &tele.Video{File: tele.File{FileID: a.Content}, Caption: a.Caption})
	default:
		return fmt.Errorf("bot: unsupported announcement type %q", a.Type)
	}
	if err != nil {
		return fmt.Errorf("bot: send announcement: %w", err)
	}

	logger.Debug(ctx, "tg", "announce.sent",
		slog.Int64("chat_id", chatID),
		slog.String("payload", a.Type),
	)
	return nil
}

// SendPrediction posts a formatted pick for the given period to a chat.
func (m *Messenger) SendPrediction(ctx context.Context, chatID int64, period, pick string) error {
	b, err := m.handle()
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🎯 Period: `%s`\n🔮 Prediction: *%s*", period, pick)
	if _, err := b.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
		return fmt.Errorf("bot: send prediction: %w", err)
	}

	logger.Debug(ctx, "tg", "prediction.sent",
		slog.Int64("chat_id", chatID),
		slog.String("period", period),
		slog.String("pick", pick),
	)
	return nil
}

// NotifyOwner sends a plain-text notice to the owner's private chat.
func (m *Messenger) NotifyOwner(ctx context.Context, text string) error {
	b, err := m.handle()
	if err != nil {
		return err
	}
	if _, err := b.Send(tele.ChatID(m.ownerID), text); err != nil {
		return fmt.Errorf("bot: notify owner: %w", err)
	}
	logger.Debug(ctx, "tg", "owner.notified",
		slog.Int64("user_id", m.ownerID),
	)
	return nil
}
