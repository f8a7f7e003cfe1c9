package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/predictbot/core/telegram"
	"github.com/m3rciful/predictbot/core/telegram/callbacks"
	"github.com/m3rciful/predictbot/core/telegram/format"
	tghelpers "github.com/m3rciful/predictbot/core/telegram/helpers"
	"github.com/m3rciful/predictbot/core/telegram/keyboard"
	"github.com/m3rciful/predictbot/core/telegram/state"
	"github.com/m3rciful/predictbot/session"
)

// Callback uniques for the inline control menu.
const (
	cbMainMenu     = "menu_main"
	cbSettingsMenu = "menu_settings"
	cbDurationMenu = "menu_duration"
	cbIntervalMenu = "menu_interval"
	cbChannelMenu  = "menu_channel"
	cbSessionStart = "session_start"
	cbSessionStop  = "session_stop"
	cbIntervalSet  = "interval_set"
	cbChannelSet   = "channel_set"
	cbPromptStart  = "prompt_start_msg"
	cbPromptEnd    = "prompt_end_msg"
	cbPromptToken  = "prompt_token"
	cbHelp         = "menu_help"
)

var (
	sessionDurations = []int{30, 60, 120}
	tickIntervals    = []int{1, 2, 5}
)

// Handlers binds the control menu to the session controller.
type Handlers struct {
	ctrl *session.Controller
	fsm  state.Manager
}

// NewHandlers wires menu handlers around the controller and FSM manager.
func NewHandlers(ctrl *session.Controller, fsm state.Manager) *Handlers {
	return &Handlers{ctrl: ctrl, fsm: fsm}
}

// RegisterCallbacks binds every menu action into the registry.
func (h *Handlers) RegisterCallbacks(reg *tg.Registry) {
	_ = reg.RegisterCallback(cbMainMenu, h.MainMenu)
	_ = reg.RegisterCallback(cbSettingsMenu, h.SettingsMenu)
	_ = reg.RegisterCallback(cbDurationMenu, h.DurationMenu)
	_ = reg.RegisterCallback(cbIntervalMenu, h.IntervalMenu)
	_ = reg.RegisterCallback(cbChannelMenu, h.ChannelMenu)
	_ = reg.RegisterCallback(cbSessionStart, h.StartSession)
	_ = reg.RegisterCallback(cbSessionStop, h.StopSession)
	_ = reg.RegisterCallback(cbIntervalSet, h.SetInterval)
	_ = reg.RegisterCallback(cbChannelSet, h.SetChannel)
	_ = reg.RegisterCallback(cbPromptStart, h.PromptStartMessage)
	_ = reg.RegisterCallback(cbPromptEnd, h.PromptEndMessage)
	_ = reg.RegisterCallback(cbPromptToken, h.PromptToken)
	_ = reg.RegisterCallback(cbHelp, h.HelpCommand)
}

// MainMenu renders the top-level menu with current session status.
func (h *Handlers) MainMenu(c tele.Context) error {
	st := h.ctrl.Status()

	var text strings.Builder
	text.WriteString("*Prediction Bot*\n\n")
	if st.Active {
		text.WriteString(fmt.Sprintf("🟢 Session active — %s remaining\n", formatRemaining(st.Remaining)))
	} else {
		text.WriteString("⚪️ No active session\n")
	}
	text.WriteString(fmt.Sprintf("📣 Channel: %s\n", mdSafe(channelLabel(st))))
	text.WriteString(fmt.Sprintf("⏱ Interval: `%s`", st.IntervalSpec))

	var buttons []keyboard.InlineBtn
	if st.Active {
		buttons = append(buttons, keyboard.InlineBtn{Text: "⏹ Stop session", Unique: cbSessionStop})
	} else {
		buttons = append(buttons, keyboard.InlineBtn{Text: "▶️ Start session", Unique: cbDurationMenu})
	}
	buttons = append(buttons,
		keyboard.InlineBtn{Text: "⚙️ Settings", Unique: cbSettingsMenu},
		keyboard.InlineBtn{Text: "ℹ️ Help", Unique: cbHelp},
	)

	return tghelpers.EditOrSendMD(c, text.String(), keyboard.InlineButtons(buttons))
}

// SettingsMenu renders the configuration submenu.
func (h *Handlers) SettingsMenu(c tele.Context) error {
	st := h.ctrl.Status()

	text := fmt.Sprintf(
		"*Settings*\n\n📣 Channel: %s\n⏱ Interval: `%s`\n💬 Start message: %s\n💬 End message: %s",
		mdSafe(channelLabel(st)), st.IntervalSpec,
		setLabel(st.StartMessageSet), setLabel(st.EndMessageSet),
	)

	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "📣 Target channel", Unique: cbChannelMenu},
		{Text: "⏱ Tick interval", Unique: cbIntervalMenu},
		{Text: "💬 Start message", Unique: cbPromptStart},
		{Text: "💬 End message", Unique: cbPromptEnd},
		{Text: "🔑 API token", Unique: cbPromptToken},
		{Text: "⬅️ Back", Unique: cbMainMenu},
	})
	return tghelpers.EditOrSendMD(c, text, markup)
}

// DurationMenu lets the owner pick how long the session should run.
func (h *Handlers) DurationMenu(c tele.Context) error {
	buttons := make([]keyboard.InlineBtn, 0, len(sessionDurations)+1)
	for _, m := range sessionDurations {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%d min", m),
			Unique: cbSessionStart,
			Data:   fmt.Sprintf("%d", m),
		})
	}
	markup := keyboard.InlineButtonsRows(
		buttons,
		[]keyboard.InlineBtn{{Text: "⬅️ Back", Unique: cbMainMenu}},
	)
	return tghelpers.EditOrSendMD(c, "*Session duration*\n\nHow long should the session run?", markup)
}

// IntervalMenu lets the owner pick how often predictions are posted.
func (h *Handlers) IntervalMenu(c tele.Context) error {
	buttons := make([]keyboard.InlineBtn, 0, len(tickIntervals)+1)
	for _, m := range tickIntervals {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("every %d min", m),
			Unique: cbIntervalSet,
			Data:   fmt.Sprintf("%d", m),
		})
	}
	markup := keyboard.InlineButtonsRows(
		buttons,
		[]keyboard.InlineBtn{{Text: "⬅️ Back", Unique: cbSettingsMenu}},
	)
	return tghelpers.EditOrSendMD(c, "*Tick interval*\n\nHow often should predictions be posted?", markup)
}

// ChannelMenu lists known channels for target selection.
func (h *Handlers) ChannelMenu(c tele.Context) error {
	known := h.ctrl.KnownChannels()
	if len(known) == 0 {
		return tghelpers.EditOrSendMD(c,
			"*Target channel*\n\nNo channels known yet. Add me to a channel as an administrator, then refresh.",
			keyboard.InlineButtons([]keyboard.InlineBtn{
				{Text: "🔄 Refresh", Unique: cbChannelMenu},
				{Text: "⬅️ Back", Unique: cbSettingsMenu},
			}),
		)
	}

	ids := make([]int64, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return known[ids[i]] < known[ids[j]] })

	buttons := make([]keyboard.InlineBtn, 0, len(ids)+1)
	for _, id := range ids {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   known[id],
			Unique: cbChannelSet,
			Data:   fmt.Sprintf("%d", id),
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{Text: "⬅️ Back", Unique: cbSettingsMenu})
	return tghelpers.EditOrSendMD(c, "*Target channel*\n\nPick where to post:", keyboard.InlineButtons(buttons))
}

// StartSession launches a session with the duration from the button payload.
func (h *Handlers) StartSession(c tele.Context) error {
	minutes, err := callbacks.PayloadInt(c)
	if err != nil {
		return tghelpers.SendText(c, "Unrecognized duration.")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.ctrl.StartSession(ctx, minutes); err != nil {
		return tghelpers.SendText(c, startErrorText(err))
	}
	return h.MainMenu(c)
}

// StopSession ends the running session from the menu.
func (h *Handlers) StopSession(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.ctrl.StopSession(ctx); err != nil {
		return tghelpers.SendText(c, fmt.Sprintf("Could not stop the session: %v", err))
	}
	_ = tghelpers.SendText(c, "⏹ Session has been stopped.")
	return h.MainMenu(c)
}

// SetInterval persists the interval chosen from the button payload.
func (h *Handlers) SetInterval(c tele.Context) error {
	minutes, err := callbacks.PayloadInt(c)
	if err != nil || minutes <= 0 {
		return tghelpers.SendText(c, "Unrecognized interval.")
	}
	ctx := tghelpers.BuildContext(c)
	spec := fmt.Sprintf("5 */%d * * * *", minutes)
	if err := h.ctrl.SetInterval(ctx, spec); err != nil {
		return tghelpers.SendText(c, fmt.Sprintf("Could not set the interval: %v", err))
	}
	return h.SettingsMenu(c)
}

// SetChannel persists the target channel chosen from the button payload.
func (h *Handlers) SetChannel(c tele.Context) error {
	chatID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, "Unrecognized channel.")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.ctrl.SetTargetChannel(ctx, chatID); err != nil {
		return tghelpers.SendText(c, "That channel is no longer available. Add me to it again.")
	}
	return h.SettingsMenu(c)
}

func startErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConfigured):
		return "⚠️ Set a target channel and an API token before starting a session."
	case errors.Is(err, session.ErrInvalidDuration):
		return "⚠️ Session duration must be positive."
	default:
		return fmt.Sprintf("Could not start the session: %v", err)
	}
}

func channelLabel(st session.Status) string {
	if st.ChannelID == 0 {
		return "not set"
	}
	if st.ChannelTitle != "" {
		return st.ChannelTitle
	}
	return fmt.Sprintf("%d", st.ChannelID)
}

// mdSafe escapes channel titles so they cannot break the menu markup.
func mdSafe(s string) string {
	escaped, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return escaped
}

func setLabel(set bool) string {
	if set {
		return "✅ set"
	}
	return "— not set"
}

func formatRemaining(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
