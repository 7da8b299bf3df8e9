// Package bot connects the ordering workflow to Telegram.
package bot

import (
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/internal/idempotency"
	"github.com/Proton-105/storefront-bot/internal/middleware"
	"github.com/Proton-105/storefront-bot/internal/ratelimit"
	"github.com/Proton-105/storefront-bot/internal/restrict"
	"github.com/Proton-105/storefront-bot/pkg/config"
)

// Deps are the collaborators wired into the update pipeline.
type Deps struct {
	Workflow    Workflow
	Idempotency idempotency.Store
	Limiter     ratelimit.Limiter
	Rules       *ratelimit.Rules
	Restrict    restrict.Store
	Errors      *apperrors.Handler
}

// Bot wraps telebot.Bot with the update pipeline.
type Bot struct {
	telebot *telebot.Bot
	router  *Router
	log     *slog.Logger
	cfg     config.Config
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.Config, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Bot.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Int64("user_id", handlers.SenderID(c)), slog.Any("error", err))
		},
	}

	if cfg.Bot.Mode == "webhook" {
		webhook := &telebot.Webhook{
			Listen: cfg.Server.WebhookListen,
		}
		if cfg.Server.WebhookURL != "" {
			webhook.Endpoint = &telebot.WebhookEndpoint{PublicURL: cfg.Server.WebhookURL}
		}
		settings.Poller = webhook
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return &Bot{
		telebot: tb,
		router:  NewRouter(log),
		log:     log,
		cfg:     cfg,
	}, nil
}

// Wire installs the middleware chain and hands text updates to deps.Workflow.
func (b *Bot) Wire(deps Deps) {
	b.router.Use(ContextMiddleware)
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(RecoveryMiddleware(b.log, deps.Errors))
	b.router.Use(middleware.Access(deps.Restrict, b.cfg.Bot.IsAdmin, b.log))
	b.router.Use(middleware.Idempotency(deps.Idempotency, middleware.DefaultUpdateTTL, b.log))
	b.router.Use(middleware.RateLimit(deps.Limiter, deps.Rules, b.log))
	b.router.Use(ErrorHandlingMiddleware(deps.Errors))
	b.router.Use(middleware.Metrics)

	b.router.RegisterCommand(CommandHelp, func(c telebot.Context) error {
		return c.Send(helpText)
	})
	b.router.SetDefault(NewDispatcher(deps.Workflow, b.log).Dispatch)

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}

// Start runs the telegram bot event loop. It blocks until Stop is called.
func (b *Bot) Start() {
	err := b.telebot.SetCommands([]telebot.Command{
		{Text: CommandStart[1:], Description: "Начать заказ"},
		{Text: CommandRestart[1:], Description: "Начать заново"},
		{Text: CommandCancel[1:], Description: "Отменить оплату"},
		{Text: CommandHelp[1:], Description: "Помощь"},
	})
	if err != nil {
		b.log.Warn("failed to register bot commands", slog.Any("error", err))
	}

	b.log.Info("telegram bot started", slog.String("mode", b.cfg.Bot.Mode))
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Notifier returns a workflow notifier that sends through this bot.
func (b *Bot) Notifier(typingDelay time.Duration) *Notifier {
	return NewNotifier(b.telebot, typingDelay, b.log)
}
