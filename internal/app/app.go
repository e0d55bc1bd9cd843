// Package app assembles the service from configuration and runs it until
// the process is signalled.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/config"
	"github.com/iliyamo/dose-reminder/internal/database"
	"github.com/iliyamo/dose-reminder/internal/dispatch"
	"github.com/iliyamo/dose-reminder/internal/doselink"
	"github.com/iliyamo/dose-reminder/internal/handler"
	"github.com/iliyamo/dose-reminder/internal/inventory"
	"github.com/iliyamo/dose-reminder/internal/ledger"
	"github.com/iliyamo/dose-reminder/internal/lock"
	"github.com/iliyamo/dose-reminder/internal/memstore"
	"github.com/iliyamo/dose-reminder/internal/middleware"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/notify"
	"github.com/iliyamo/dose-reminder/internal/planner"
	"github.com/iliyamo/dose-reminder/internal/queue"
	"github.com/iliyamo/dose-reminder/internal/repository"
	"github.com/iliyamo/dose-reminder/internal/router"
)

// Store is everything the service reads and writes.  repository.Store and
// memstore.Store both implement it.
type Store interface {
	ledger.Store
	dispatch.Reader
	planner.Source
	handler.ScheduleStore
	handler.InventoryStore
}

var (
	_ Store = (*repository.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// App owns every long-running component.
type App struct {
	cfg   config.Config
	log   *zap.Logger
	clock clock.Clock

	db  *sql.DB
	rdb *redis.Client

	store     Store
	links     *doselink.Signer
	ledger    *ledger.Service
	scheduler *dispatch.Scheduler
	planner   *planner.Planner
	echo      *echo.Echo

	delayed   *queue.Delayed
	publisher *queue.Publisher
	consumer  *queue.Consumer
	local     *dispatch.LocalQueue
}

// New connects to the configured backends and wires the engine.  Nothing
// is started until Run.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, clock: clock.Real{}}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.rdb = rdb

	a.links = doselink.NewSigner(cfg.JWTSecret, cfg.DoseLinkTTL)
	composer, err := notify.NewComposer(cfg.AppURL, notify.WithLinkSigner(a.links))
	if err != nil {
		a.close()
		return nil, err
	}
	sender := notify.NewWebhookSender(cfg.ZapierHookURL, nil, log)
	fire := dispatch.NewHandler(a.store, composer, sender, a.clock, log, cfg.DefaultTimezone)

	a.scheduler = dispatch.NewScheduler(a.wireQueue(fire), a.clock, log)

	opts := ledger.Options{
		GuardRepeatConfirm: cfg.LedgerGuardRepeatConfirm,
		DefaultTimezone:    cfg.DefaultTimezone,
	}
	if cfg.LedgerLockEnabled {
		if a.rdb != nil {
			opts.Locker = lock.NewRedis(a.rdb, cfg.LedgerLockTTL, log)
		} else {
			opts.Locker = lock.NewLocal()
		}
	}
	a.ledger = ledger.NewService(a.store, inventory.NewDetector(a.scheduler, log), a.clock, log, opts)

	a.planner = planner.New(a.store, a.scheduler, a.clock, log, planner.Options{
		Spec:            cfg.PlannerSpec,
		Horizon:         cfg.PlannerHorizon,
		DefaultTimezone: cfg.DefaultTimezone,
	})

	a.echo = a.newEcho()
	return a, nil
}

// openStore selects the store driver, applies the schema for MySQL, and
// loads SEED_FILE when set.
func (a *App) openStore(ctx context.Context) error {
	var apply func(model.Seed) error
	switch a.cfg.StoreDriver {
	case config.DriverMemory:
		st := memstore.New()
		a.store = st
		apply = func(s model.Seed) error { st.Apply(s); return nil }
	default:
		db, err := database.Open(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		st := repository.NewStore(db)
		a.db, a.store = db, st
		apply = func(s model.Seed) error { return st.ApplySeed(ctx, s) }
	}
	a.log.Info("store ready", zap.String("driver", a.cfg.StoreDriver))

	if a.cfg.SeedFile == "" {
		return nil
	}
	f, err := os.Open(a.cfg.SeedFile)
	if err != nil {
		a.close()
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	seed, err := model.DecodeSeed(f)
	if err == nil {
		err = apply(seed)
	}
	if err != nil {
		a.close()
		return err
	}
	a.log.Info("seed loaded",
		zap.String("file", a.cfg.SeedFile),
		zap.Int("users", len(seed.Users)),
		zap.Int("medicines", len(seed.Medicines)),
		zap.Int("schedules", len(seed.Schedules)))
	return nil
}

// wireQueue picks the delayed substrate.  With Redis, due jobs go to
// RabbitMQ when configured and straight to the fire-time handler
// otherwise.  Without Redis, jobs wait on in-process timers.
func (a *App) wireQueue(fire *dispatch.Handler) dispatch.Queue {
	if a.rdb == nil {
		if a.cfg.StoreDriver == config.DriverMySQL {
			a.log.Warn("REDIS_ADDR not set; pending dispatches are held in memory and lost on restart")
		}
		a.local = dispatch.NewLocalQueue(fire.HandleBody, a.clock, a.log)
		return a.local
	}
	sink := queue.Handler(fire.HandleBody)
	opts := queue.DelayedOptions{PollInterval: a.cfg.DispatchPollInterval}
	if a.cfg.RabbitMQURL != "" {
		a.publisher = queue.NewPublisher(a.cfg.RabbitMQURL, a.cfg.DispatchQueue, a.log)
		a.consumer = queue.NewConsumer(a.cfg.RabbitMQURL, a.cfg.DispatchQueue, fire.HandleBody, a.log)
		sink = a.publisher.Publish
		// Only a failed hand-off to the broker is retried; a failed
		// delivery is final.
		opts.RetryDelay = a.cfg.DispatchRetryDelay
	}
	a.delayed = queue.NewDelayed(a.rdb, sink, a.log, opts)
	return a.delayed
}

func (a *App) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(a.log))

	checks := map[string]handler.Check{}
	if a.db != nil {
		checks["database"] = a.db.PingContext
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	router.RegisterRoutes(e, router.Handlers{
		Health:    handler.NewHealth(a.clock, checks),
		Doses:     handler.NewDoseHandler(a.ledger, a.links, a.log),
		Schedules: handler.NewScheduleHandler(a.store, a.clock, a.log),
		Inventory: handler.NewInventoryHandler(a.store, a.clock, a.log),
	}, a.cfg.JWTSecret)
	return e
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler { return a.echo }

// Run starts the workers, the planner and the HTTP server, and blocks
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting dose-reminder",
		zap.String("env", a.cfg.Env),
		zap.String("port", a.cfg.Port),
		zap.String("store", a.cfg.StoreDriver),
		zap.Bool("redis", a.rdb != nil),
		zap.Bool("rabbitmq", a.consumer != nil))

	var wg sync.WaitGroup
	work := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error(name+" stopped", zap.Error(err))
			}
		}()
	}
	if a.consumer != nil {
		work("dispatch consumer", a.consumer.Run)
	}
	if a.delayed != nil {
		work("delayed queue", a.delayed.Run)
	}

	if err := a.planner.Start(ctx); err != nil {
		stop()
		wg.Wait()
		a.close()
		return err
	}

	srvErr := make(chan error, 1)
	go func() {
		if err := a.echo.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-srvErr:
		runErr = err
		a.log.Error("http server error", zap.Error(err))
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.echo.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	cancel()
	a.planner.Stop()
	wg.Wait()
	a.close()
	return runErr
}

// close releases backends in reverse order of acquisition.
func (a *App) close() {
	if a.local != nil {
		a.local.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
