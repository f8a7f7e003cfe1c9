package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/predictbot/core/bootstrap"
	coreconfig "github.com/m3rciful/predictbot/core/config"
	coretelegram "github.com/m3rciful/predictbot/core/telegram"
	"github.com/m3rciful/predictbot/core/telegram/router"
	"github.com/m3rciful/predictbot/core/telegram/state"
	"github.com/m3rciful/predictbot/history"
	"github.com/m3rciful/predictbot/predict"
	"github.com/m3rciful/predictbot/session"
	"github.com/m3rciful/predictbot/store"
)

// predictorAdapter narrows the upstream client to the controller's view.
type predictorAdapter struct {
	client *predict.Client
}

func (a predictorAdapter) GenerateNextPick(ctx context.Context, token string) (session.Pick, error) {
	res, err := a.client.GenerateNextPick(ctx, token)
	if err != nil {
		return session.Pick{}, err
	}
	return session.Pick{LatestPeriod: res.LatestPeriod, Recommendation: res.Pick}, nil
}

// Build assembles the full application from configuration and returns
// transport options ready for the bot runtime.
func Build(cfg *coreconfig.Config) (coretelegram.RunOptions, error) {
	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	stateStore := store.New(cfg.State.Path)
	st, err := stateStore.Load()
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("bot: load state: %w", err)
	}

	var hist session.History = session.NopHistory{}
	if boot.DB != nil {
		hist = history.NewRecorder(boot.DB)
	}

	messenger := NewMessenger(cfg.Telegram.OwnerID)
	ctrl, err := session.New(session.Options{
		State:     st,
		Store:     stateStore,
		Messenger: messenger,
		Predictor: predictorAdapter{client: predict.NewClient(cfg.Upstream)},
		Scheduler: session.NewCronScheduler(),
		History:   hist,
	})
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	fsm := state.NewMemoryManager()
	handlers := NewHandlers(ctrl, fsm)

	reg := coretelegram.NewRegistry()
	handlers.RegisterCommands(reg)
	handlers.RegisterCallbacks(reg)
	handlers.RegisterPrompts()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: cfg.Telegram.OwnerID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(fsm, reg, router.TextOptions{})...)
	routes = append(routes, router.MediaRoutes(fsm)...)
	routes = append(routes, MyChatMemberRoute(ctrl))

	middlewares := append(
		[]coretelegram.Middleware{ownerGate(cfg.Telegram.OwnerID)},
		coretelegram.DefaultMiddlewares(cfg, nil)...,
	)

	return coretelegram.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			messenger.Bind(rt.Bot)
			return ctrl.Resume(ctx)
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			ctrl.Shutdown()
			if boot.DB != nil {
				_ = boot.DB.Close()
			}
			return nil
		},
	}, nil
}

// ownerGate drops every update not sent by the owner. Membership updates
// pass through: they fire when any channel admin adds or removes the bot.
func ownerGate(ownerID int64) coretelegram.Middleware {
	return coretelegram.Middleware{
		Name: "owner_gate",
		Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				if c.Update().MyChatMember != nil {
					return next(c)
				}
				sender := c.Sender()
				if sender == nil || sender.ID != ownerID {
					return nil
				}
				return next(c)
			}
		},
	}
}
