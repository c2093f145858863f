package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ceb-outage-alerts/internal/alerting"
	"ceb-outage-alerts/internal/config"
	"ceb-outage-alerts/internal/portal"
	"ceb-outage-alerts/internal/scheduler"
	"ceb-outage-alerts/internal/service"
	"ceb-outage-alerts/internal/storage"
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

func (a *App) newPortalClient() *portal.Client {
	return portal.NewClient(portal.Options{
		BaseURL:   a.Config.Portal.BaseURL,
		Username:  a.Config.Portal.Username,
		Password:  a.Config.Portal.Password,
		UserAgent: a.Config.Portal.UserAgent,
		Timeout:   a.Config.Portal.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	return alerting.NewNtfyNotifier(a.Config.Notify.URL, a.Config.Notify.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	var archive storage.NotificationStore
	if store != nil {
		archive = store
	}
	return service.New(a.Config, a.newPortalClient(), a.newNotifier(), archive, a.Logger)
}

// CheckOptions configure a single outage check.
type CheckOptions struct {
	// Force overrides notify.force_tomorrow when non-nil.
	Force *bool
}

// Check performs one outage check and exits.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	if opts.Force != nil {
		a.Config.Notify.ForceTomorrow = *opts.Force
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store)

	result, err := svc.RunOnce(ctx, time.Now())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("outages", len(result.Outages)).
		Int("new_notifications", len(result.NewNotifications)).
		Msg("check complete")
	return nil
}

// Watch runs outage checks on the configured interval until interrupted.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	svc := a.newService(store)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting outage watcher")
	err = sched.Run(ctx, func(ctx context.Context, now time.Time) error {
		_, runErr := svc.RunOnce(ctx, now)
		return runErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("outage watcher stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the notification archive.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	MaxRows int
}

// PruneOptions configure archive retention.
type PruneOptions struct {
	OlderThan time.Time
}
