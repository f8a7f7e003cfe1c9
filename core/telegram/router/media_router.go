package router

import (
	"time"

	tg "github.com/m3rciful/predictbot/core/telegram"
	"github.com/m3rciful/predictbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MediaRoutes builds handlers for photo/video/animation updates. Media only
// matters while a conversation expects it, so everything funnels into the FSM;
// updates outside a conversation are acknowledged silently.
func MediaRoutes(fsmMgr FSM) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if fsmMgr != nil && fsmMgr.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "fsm_media", start, "", "", func() error {
				return fsmMgr.ManagerHandler(c)
			})
		}
		logHandlerSummary(c, "unexpected_media", start, "skip", "ok", nil)
		return nil
	}

	endpoints := []any{tele.OnPhoto, tele.OnVideo, tele.OnAnimation}
	routes := make([]tg.Route, 0, len(endpoints))
	for _, ep := range endpoints {
		routes = append(routes, tg.Route{
			Endpoint: ep,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		})
	}
	return routes
}
