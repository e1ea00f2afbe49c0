// Package app wires the bridge together: config, logging, storage, the
// lifecycle tracker behind the webhook ingress, and the cron-driven digest
// and reconciliation loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"alertbridge/internal/alert"
	"alertbridge/internal/config"
	"alertbridge/internal/digest"
	"alertbridge/internal/grafana"
	"alertbridge/internal/ingress"
	"alertbridge/internal/mention"
	"alertbridge/internal/notify"
	matrix "alertbridge/internal/notify/matrix"
	"alertbridge/internal/storage"
	"alertbridge/internal/tracker"
	logx "alertbridge/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store     storage.Store
	notifier  notify.Notifier
	tracker   *tracker.Tracker
	policy    *mention.Policy
	scheduler *digest.Scheduler

	cron    *cron.Cron
	httpSrv *http.Server

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	mgr.SetLogger(log)

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	notifier, err := matrix.New(matrix.Config{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		AccessToken:   cfg.Matrix.AccessToken,
		RoomID:        cfg.Matrix.RoomID,
		RatePerSec:    cfg.Matrix.RatePerSec,
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("matrix client: %w", err)
	}

	a := &App{
		cfgMgr:    mgr,
		logSvc:    logSvc,
		log:       log,
		store:     store,
		notifier:  notifier,
		tracker:   tracker.New(store, notifier, log),
		policy:    mention.NewPolicy(cfg.MentionConfigPath, log),
		scheduler: digest.NewScheduler(store, log),
		cron:      cron.New(),
	}

	srv := ingress.NewServer(a.tracker, log)
	a.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := a.scheduleJobs(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		},
	}
}

func (a *App) scheduleJobs(cfg *config.Config) error {
	type tierSchedule struct {
		tier alert.Tier
		path string
		raw  string
	}
	for _, ts := range []tierSchedule{
		{alert.TierCritical, "summary.schedule_crit", cfg.Summary.ScheduleCrit},
		{alert.TierWarning, "summary.schedule_warn", cfg.Summary.ScheduleWarn},
	} {
		interval, err := config.ParseDurationField(ts.path, ts.raw)
		if err != nil {
			return err
		}
		if interval <= 0 {
			a.log.Info("digest disabled for tier", logx.String("tier", string(ts.tier)))
			continue
		}
		tier := ts.tier
		// Check twice per interval; MaybeDigest gates the actual cadence,
		// so a missed tick only delays a digest, never doubles it.
		every := interval / 2
		if every < time.Minute {
			every = time.Minute
		}
		if _, err := a.cron.AddFunc("@every "+every.String(), func() {
			a.runDigest(tier, interval)
		}); err != nil {
			return err
		}
		a.log.Info("digest scheduled",
			logx.String("tier", string(tier)),
			logx.Duration("min_interval", interval),
		)
	}

	if cfg.Grafana.URL != "" {
		client, err := grafana.New(grafana.Config{URL: cfg.Grafana.URL, APIKey: cfg.Grafana.APIKey}, a.log)
		if err != nil {
			return err
		}
		rec := grafana.NewReconciler(client, a.store, a.tracker, a.log)
		every, err := config.ParseDurationOrDefault("grafana.reconcile_interval", cfg.Grafana.ReconcileInterval, 5*time.Minute)
		if err != nil {
			return err
		}
		if _, err := a.cron.AddFunc("@every "+every.String(), func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := rec.Run(ctx); err != nil {
				a.log.Warn("reconcile pass failed", logx.Err(err))
			}
		}); err != nil {
			return err
		}
		a.log.Info("grafana reconciliation scheduled", logx.Duration("every", every))
	}
	return nil
}

func (a *App) runDigest(tier alert.Tier, minInterval time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	dec, err := a.scheduler.MaybeDigest(ctx, tier, now, minInterval)
	if err != nil {
		a.log.Error("digest check failed", logx.String("tier", string(tier)), logx.Err(err))
		return
	}
	if !dec.Due {
		return
	}
	// Policy decision: an empty due digest consumes the interval (lastSent
	// already advanced) but sends nothing; nobody wants "0 active alerts"
	// on a schedule.
	if len(dec.Alerts) == 0 {
		a.log.Debug("digest due but empty; suppressed", logx.String("tier", string(tier)))
		return
	}

	token := ""
	if a.policy.ShouldMention(string(tier), now) {
		token = a.policy.Token(string(tier))
	}
	if err := a.notifier.SendDigest(ctx, tier, dec.Alerts, token); err != nil {
		a.log.Error("digest send failed", logx.String("tier", string(tier)), logx.Err(err))
		return
	}
	a.log.Info("digest sent",
		logx.String("tier", string(tier)),
		logx.Int("alerts", len(dec.Alerts)),
		logx.Bool("mention", token != ""),
	)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("ingress listening", logx.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("ingress server failed", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	// Hot reload: logging applies live; storage, matrix and schedules are
	// bound at startup and need a restart to change.
	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok || cfg == nil {
					return
				}
				a.logSvc.Apply(logConfig(cfg))
				a.log.Info("logging config applied")
			}
		}
	}()

	a.cron.Start()
	a.notifyReadiness(runCtx)
	a.log.Info("alertbridge started")
	return nil
}

// notifyReadiness integrates with systemd when running as a unit: READY on
// start and WATCHDOG pings if a watchdog interval is configured. Outside
// systemd both calls are no-ops.
func (a *App) notifyReadiness(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
	}

	a.wg.Wait()

	err := a.store.Close()
	_ = a.logSvc.Close()
	a.log.Info("alertbridge stopped")
	return err
}
