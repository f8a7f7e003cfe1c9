package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/predictbot/core/telegram"
	"github.com/m3rciful/predictbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/predictbot/core/telegram/helpers"
)

// RegisterCommands binds the owner command surface into the registry.
func (h *Handlers) RegisterCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.MainMenu,
		Description: "Open the control menu",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     h.StatusCommand,
		Description: "Show session status",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/stop", commands.Command{
		Handler:     h.StopSession,
		Description: "Stop the active session",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.HelpCommand,
		Description: "How to set up and run sessions",
		AdminOnly:   true,
	})
}

const helpText = `*How it works*

1. Add me to your channel as an administrator — it appears under Settings → Target channel.
2. Set the upstream API token under Settings → API token.
3. Optionally set start/end messages (text, photo, GIF, or video).
4. Start a session and pick a duration; I post a prediction on every tick until it ends.

A running session survives restarts: I pick it up again with the time that is left.`

// HelpCommand replies with the setup walkthrough.
func (h *Handlers) HelpCommand(c tele.Context) error {
	return tghelpers.SendMD(c, helpText)
}

// StatusCommand replies with a one-shot status summary.
func (h *Handlers) StatusCommand(c tele.Context) error {
	st := h.ctrl.Status()
	if !st.Active {
		return tghelpers.SendText(c, fmt.Sprintf("⚪️ No active session.\nChannel: %s\nInterval: %s", channelLabel(st), st.IntervalSpec))
	}
	return tghelpers.SendText(c, fmt.Sprintf("🟢 Session active — %s remaining.\nChannel: %s\nInterval: %s",
		formatRemaining(st.Remaining), channelLabel(st), st.IntervalSpec))
}
