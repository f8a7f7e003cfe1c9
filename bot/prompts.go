package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/predictbot/core/telegram/helpers"
	"github.com/m3rciful/predictbot/core/telegram/state"
	"github.com/m3rciful/predictbot/session"
	"github.com/m3rciful/predictbot/store"
)

// Conversation states for owner prompts.
const (
	StateAwaitStartMessage state.State = "await_start_message"
	StateAwaitEndMessage   state.State = "await_end_message"
	StateAwaitToken        state.State = "await_token"
)

// RegisterPrompts binds the prompt consumers to their conversation states.
func (h *Handlers) RegisterPrompts() {
	h.fsm.RegisterHandler(StateAwaitStartMessage, h.consumeAnnouncement(session.SlotStart))
	h.fsm.RegisterHandler(StateAwaitEndMessage, h.consumeAnnouncement(session.SlotEnd))
	h.fsm.RegisterHandler(StateAwaitToken, h.consumeToken)
}

// PromptStartMessage asks the owner to send the session start announcement.
func (h *Handlers) PromptStartMessage(c tele.Context) error {
	h.fsm.SetState(c.Sender().ID, StateAwaitStartMessage)
	return tghelpers.SendText(c, "Send the message to post when a session starts. Text, photo, GIF, and video are supported.")
}

// PromptEndMessage asks the owner to send the session end announcement.
func (h *Handlers) PromptEndMessage(c tele.Context) error {
	h.fsm.SetState(c.Sender().ID, StateAwaitEndMessage)
	return tghelpers.SendText(c, "Send the message to post when a session ends. Text, photo, GIF, and video are supported.")
}

// PromptToken asks the owner for a fresh upstream API token.
func (h *Handlers) PromptToken(c tele.Context) error {
	h.fsm.SetState(c.Sender().ID, StateAwaitToken)
	return tghelpers.SendText(c, "Send the new API token as plain text.")
}

func (h *Handlers) consumeAnnouncement(slot session.Slot) tele.HandlerFunc {
	return func(c tele.Context) error {
		a, ok := captureAnnouncement(c.Message())
		if !ok {
			return tghelpers.SendText(c, "Unsupported message type. Send text, a photo, a GIF, or a video.")
		}

		ctx := tghelpers.BuildContext(c)
		if err := h.ctrl.SetAnnouncement(ctx, slot, a); err != nil {
			return tghelpers.SendText(c, "Could not save the message. Try again.")
		}
		h.fsm.ClearState(c.Sender().ID)
		_ = tghelpers.SendText(c, "✅ Message saved.")
		return h.SettingsMenu(c)
	}
}

func (h *Handlers) consumeToken(c tele.Context) error {
	token := strings.TrimSpace(c.Text())
	if token == "" {
		return tghelpers.SendText(c, "The token must be plain text. Send it again.")
	}

	ctx := tghelpers.BuildContext(c)
	if err := h.ctrl.SetCredentials(ctx, token); err != nil {
		return tghelpers.SendText(c, "Could not save the token. Try again.")
	}
	h.fsm.ClearState(c.Sender().ID)
	_ = tghelpers.SendText(c, "✅ Token saved.")
	return h.SettingsMenu(c)
}

// captureAnnouncement extracts an announcement from an owner message,
// preferring media over text so captioned media keeps its caption.
func captureAnnouncement(msg *tele.Message) (store.Announcement, bool) {
	if msg == nil {
		return store.Announcement{}, false
	}
	switch {
	case msg.Photo != nil:
		return store.Announcement{Type: store.AnnouncementPhoto, Content: msg.Photo.FileID, Caption: msg.Caption}, true
	case msg.Animation != nil:
		return store.Announcement{Type: store.AnnouncementAnimation, Content: msg.Animation.FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return store.Announcement{Type: store.AnnouncementVideo, Content: msg.Video.FileID, Caption: msg.Caption}, true
	case strings.TrimSpace(msg.Text) != "":
		return store.Announcement{Type: store.AnnouncementText, Content: msg.Text}, true
	}
	return store.Announcement{}, false
}
