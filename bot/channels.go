package bot

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/predictbot/core/telegram"
	tghelpers "github.com/m3rciful/predictbot/core/telegram/helpers"
	"github.com/m3rciful/predictbot/core/telegram/middleware"
	"github.com/m3rciful/predictbot/session"
)

// MyChatMemberRoute tracks the bot's own membership in channels. Gaining
// member or admin status registers the channel; losing it unregisters and
// clears the target if it pointed there. Groups and private chats are ignored.
func MyChatMemberRoute(ctrl *session.Controller) tg.Route {
	handler := func(c tele.Context) error {
		upd := c.ChatMember()
		if upd == nil || upd.Chat == nil || upd.NewChatMember == nil {
			return nil
		}
		if upd.Chat.Type != tele.ChatChannel {
			return nil
		}

		ctx := tghelpers.BuildContext(c)
		switch upd.NewChatMember.Role {
		case tele.Creator, tele.Administrator, tele.Member:
			return ctrl.TrackChannel(ctx, upd.Chat.ID, upd.Chat.Title)
		case tele.Restricted, tele.Left, tele.Kicked:
			return ctrl.UntrackChannel(ctx, upd.Chat.ID)
		}
		return nil
	}
	return tg.Route{
		Endpoint: tele.OnMyChatMember,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
