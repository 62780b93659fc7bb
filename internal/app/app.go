// Package app assembles the daemon: config, logging, transport, storage,
// scheduler, delivery and the interactive bot core.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"planbot/internal/bot"
	"planbot/internal/config"
	"planbot/internal/delivery"
	"planbot/internal/history"
	"planbot/internal/planner"
	"planbot/internal/scheduler"
	"planbot/internal/store"
	"planbot/internal/transport"
	"planbot/internal/transport/telegram"
	"planbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log       logx.Logger
	logCloser io.Closer

	adapter *telegram.Adapter
	store   *store.Store
	sched   *scheduler.Service
	hist    history.Store
	exec    *delivery.Executor
	plan    *planner.Planner
	bot     *bot.Bot

	updates chan transport.Update
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.MustDuration(cfg.Telegram.PollTimeout),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	// Mirror warnings and errors into the operator chat, rate limited.
	if cfg.Telegram.LogChatID != 0 {
		target := transport.ChatTarget{ChatID: cfg.Telegram.LogChatID}
		hook := logx.NewTelegramHook(func(text string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = ad.SendText(ctx, target, text, nil)
		}, cfg.Logging.TelegramMin, cfg.Logging.TelegramRPS)
		log = log.Attach(hook)
	}

	loc := cfg.Location()
	st := store.Open(cfg.Storage.DataFile, cfg.Telegram.InitialAdmin, log.With(logx.String("comp", "store")))
	sched := scheduler.New(loc, log.With(logx.String("comp", "scheduler")))

	hist, err := history.Open(history.Config{
		Driver: cfg.Storage.History.Driver,
		Path:   cfg.Storage.History.Path,
	}, log.With(logx.String("comp", "history")))
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	if hist != nil {
		log.Info("delivery history enabled", logx.String("driver", cfg.Storage.History.Driver))
	}

	exec := delivery.New(ad, hist, loc, delivery.Config{
		RetryMax:       cfg.Delivery.RetryMax,
		RetryBase:      config.MustDuration(cfg.Delivery.RetryBase),
		AttemptTimeout: config.MustDuration(cfg.Delivery.AttemptTimeout),
		ItemsPerSec:    cfg.Delivery.ItemsPerSec,
	}, log.With(logx.String("comp", "delivery")))

	plan := planner.New(st, sched, exec, cfg.Telegram.ChannelID, log.With(logx.String("comp", "planner")))

	b := bot.New(ad, st, plan, sched, loc,
		config.MustDuration(cfg.Media.Debounce),
		log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:      cfgm,
		cfg:       cfg,
		log:       log.With(logx.String("comp", "app")),
		logCloser: logCloser,
		adapter:   ad,
		store:     st,
		sched:     sched,
		hist:      hist,
		exec:      exec,
		plan:      plan,
		bot:       b,
		updates:   make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfg

	a.sched.Start()
	restored := a.plan.RestoreAll()

	staleAfter := config.MustDuration(cfg.Media.StaleAfter)
	if err := a.sched.AddEvery("media-sweep", config.MustDuration(cfg.Media.SweepEvery), func() {
		a.bot.SweepMediaGroups(staleAfter)
	}); err != nil {
		return err
	}

	if a.hist != nil {
		keep := time.Duration(cfg.Storage.History.KeepDays) * 24 * time.Hour
		if err := a.sched.AddCron("history-prune", cfg.Storage.History.PruneSpec, func() {
			pctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := a.hist.Prune(pctx, time.Now().Add(-keep))
			if err != nil {
				a.log.Warn("history prune failed", logx.Err(err))
				return
			}
			if n > 0 {
				a.log.Info("history pruned", logx.Int("removed", n))
			}
		}); err != nil {
			return err
		}
	}

	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.consume(ctx)

	// Hot reload covers the log level only; everything else needs a restart.
	go func() {
		if err := a.cfgm.Watch(ctx, func(next *config.Config) {
			logx.SetLevel(next.Logging.Level)
			a.log.Info("log level applied", logx.String("level", next.Logging.Level))
		}); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	a.log.Info("bot started",
		logx.Int64("channel_id", cfg.Telegram.ChannelID),
		logx.String("tz", cfg.Timezone),
		logx.Int("restored", restored))
	return nil
}

func (a *App) consume(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			a.bot.HandleUpdate(ctx, u)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	err := a.adapter.Stop(ctx)
	a.sched.Stop()
	a.wg.Wait()
	if a.hist != nil {
		if cerr := a.hist.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("bot stopped")
	a.logCloser.Close()
	return err
}
