package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundwatch/internal/alerting"
	"fundwatch/internal/bot"
	"fundwatch/internal/config"
	"fundwatch/internal/fetcher"
	"fundwatch/internal/scheduler"
	"fundwatch/internal/service"
	"fundwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPageFetcher() fetcher.PageFetcher {
	return fetcher.NewPage(fetcher.PageOptions{
		Timeout:   a.Config.Transport.RequestTimeout,
		UserAgent: a.Config.Transport.UserAgent,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	db, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(db)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running polling daemon: the cron-driven poll cycle
// plus, when a Discord token is configured, the slash-command gateway.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier alerting.Notifier
	session, err := bot.NewSession(a.Config.Discord)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("discord disabled; notifications and slash commands unavailable")
		session = nil
	} else {
		notifier = alerting.NewDiscordNotifier(session, a.Logger)
	}

	svc := service.New(a.newPageFetcher(), store, store, store, notifier, a.Logger)

	var gateway *bot.Bot
	if session != nil {
		gateway = bot.New(session, a.Config.Discord.GuildID, svc, a.Logger)
	}

	sched := scheduler.New(scheduler.Options{Location: a.Config.Location()}, a.Logger, ctx)
	if _, err := sched.Add(a.Config.Scheduler.CronSpec, svc.RunPollCycle); err != nil {
		return fmt.Errorf("schedule poll cycle: %w", err)
	}

	if gateway != nil {
		if err := gateway.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := gateway.Stop(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to stop discord gateway")
			}
		}()
	}

	if a.Config.Scheduler.RunOnStart {
		a.Logger.Info().Msg("running initial poll cycle")
		svc.RunPollCycle(ctx)
	}

	sched.Start()
	a.Logger.Info().Str("cron_spec", a.Config.Scheduler.CronSpec).Msg("fundwatch daemon started")

	<-ctx.Done()

	a.Logger.Info().Msg("shutting down")
	sched.Stop()
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Instrument string
	Limit      int
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Instrument string
	CSVPath    string
	PNGPath    string
	MaxPoints  int
}

// SimulateOptions feed a synthetic price through the notification path.
type SimulateOptions struct {
	Instrument string
	Price      decimal.Decimal
	ChannelID  string
}
