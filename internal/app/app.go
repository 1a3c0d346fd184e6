// Package app wires the filter service together from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"imgfilter/internal/api"
	"imgfilter/internal/classifier"
	"imgfilter/internal/config"
	"imgfilter/internal/domain"
	"imgfilter/internal/logging"
	"imgfilter/internal/model"
	"imgfilter/internal/notifier"
	"imgfilter/internal/queue"
	"imgfilter/internal/redis"
	"imgfilter/internal/scheduler"
	"imgfilter/internal/settings"
	"imgfilter/internal/storage"
	"imgfilter/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	// ConfigPath is watched for filter changes when set.
	ConfigPath string
	// HTTP serves the API on cfg.Server.Port.
	HTTP bool
	// Consumer reads classify and session_ended events from the request topic.
	Consumer bool
}

// Run starts the scheduler and every configured integration, loads the
// model in the background and blocks until ctx is done or a component
// fails.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, logs *logging.Switch, opts Options) error {
	var (
		closers  []func() error
		recOpts  []worker.RecorderOption
		apiOpts  []api.Option
		rdb      *redis.Client
		store    *redis.SettingsStore
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close", "error", err)
			}
		}
	}()

	broker := api.NewSSEBroker()
	recOpts = append(recOpts, worker.WithBroadcaster(broker))
	apiOpts = append(apiOpts, api.WithBroker(broker))

	if cfg.Redis.Addr != "" {
		var err error
		if rdb, err = redis.New(cfg.Redis.Addr); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, rdb.Close)
		store = rdb.Settings(cfg.Redis.SettingsKey, cfg.Redis.SettingsChannel, logger)
		apiOpts = append(apiOpts, api.WithSettingsPublisher(store))
	}

	if cfg.Storage.DSN != "" {
		repo, err := storage.NewPostgres(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}
		closers = append(closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}
		recOpts = append(recOpts, worker.WithRepository(repo))
		apiOpts = append(apiOpts, api.WithRepository(repo))
	}

	if len(cfg.Queue.Brokers) > 0 && cfg.Queue.VerdictTopic != "" {
		pub, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.VerdictTopic)
		if err != nil {
			return fmt.Errorf("create verdict publisher: %w", err)
		}
		closers = append(closers, pub.Close)
		recOpts = append(recOpts, worker.WithPublisher(pub))
	}

	if cfg.Notifier.TelegramToken != "" && len(cfg.Notifier.TelegramChatIDs) > 0 {
		recOpts = append(recOpts, worker.WithNotifier(notifier.NewTelegram(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatIDs)))
	}

	rec := worker.NewRecorder(logger, recOpts...)

	sched, err := scheduler.New(cfg.Filter.Concurrency,
		scheduler.WithDispatchTimeout(cfg.Filter.DispatchTimeout),
		scheduler.WithEndedSessionMemory(cfg.Filter.EndedSessionMemory),
		scheduler.WithObserver(rec),
		scheduler.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	bridge, err := newBridge(ctx, cfg, sched, logs, store, logger)
	if err != nil {
		return err
	}

	// The recorder outlives the errgroup so verdicts delivered by
	// sched.Close are still recorded.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	recDone := make(chan struct{})
	go func() {
		rec.Start(recCtx)
		close(recDone)
	}()
	defer func() {
		stopRecorder()
		<-recDone
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loadModel(gctx, cfg, rdb, bridge, sched, logger)
	})

	if store != nil {
		g.Go(func() error {
			return store.Subscribe(gctx, func(u domain.SettingsUpdate) error {
				_, err := bridge.Apply(u)
				return err
			})
		})
	}

	if opts.ConfigPath != "" {
		reloader := newFilterReloader(cfg.Filter.Settings(), bridge, store, logger)
		w := config.NewWatcher(opts.ConfigPath, logger)
		if err := w.Watch(func(c *config.Config) {
			reloader.reload(gctx, c)
		}); err != nil {
			logger.Warn("config watch disabled", "path", opts.ConfigPath, "error", err)
		} else {
			closers = append(closers, w.Close)
		}
	}

	if opts.Consumer && len(cfg.Queue.Brokers) > 0 && cfg.Queue.RequestTopic != "" {
		kc, err := queue.NewKafkaConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.RequestTopic, logger)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		closers = append(closers, kc.Close)

		cw := worker.NewConsumer(kc, sched, logger)
		g.Go(func() error {
			return cw.Start(gctx)
		})
	}

	if opts.HTTP {
		server := api.NewServer(sched, bridge, logger, apiOpts...)
		g.Go(func() error {
			logger.Info("server starting", "addr", cfg.Server.Port)
			return server.Start(cfg.Server.Port)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("filter started", "concurrency", cfg.Filter.Concurrency, "strictness", cfg.Filter.FilterStrictness)

	err = g.Wait()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := sched.Close(shutdownCtx); cerr != nil {
		logger.Warn("scheduler close", "error", cerr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newBridge starts from the configured filter settings; settings already
// shared in Redis take precedence so replicas agree.
func newBridge(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, logs *logging.Switch, store *redis.SettingsStore, logger *slog.Logger) (*settings.Bridge, error) {
	bridge, err := settings.NewBridge(cfg.Filter.Settings(), sched, logs, logger)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return bridge, nil
	}

	shared, ok, err := store.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("load shared settings", "error", err)
	case ok:
		if _, err := bridge.Apply(shared.Update()); err != nil {
			logger.Warn("shared settings rejected", "error", err)
		}
	default:
		if err := store.Save(ctx, bridge.Current()); err != nil {
			logger.Warn("save shared settings", "error", err)
		}
	}
	return bridge, nil
}

func loadModel(ctx context.Context, cfg *config.Config, rdb *redis.Client, bridge *settings.Bridge, sched *scheduler.Scheduler, logger *slog.Logger) error {
	remote := classifier.NewRemote(cfg.Model.Endpoint, cfg.Model.Timeout, cfg.Model.MaxImageBytes)

	var cl classifier.Classifier = remote
	if rdb != nil && cfg.Cache.TTL > 0 {
		cl = classifier.NewCached(remote, rdb, cfg.Cache.TTL, logger)
	}

	m, err := model.Load(ctx, func(ctx context.Context) (classifier.Classifier, error) {
		if err := remote.Ping(ctx); err != nil {
			return nil, err
		}
		return cl, nil
	}, model.LoadOptions{
		Attempts:      cfg.Model.LoadAttempts,
		Backoff:       cfg.Model.LoadBackoff,
		Strictness:    bridge.Current().FilterStrictness,
		UnsafeClasses: cfg.Model.UnsafeClasses,
	}, logger)
	if err != nil {
		return err
	}

	if err := bridge.AttachModel(m); err != nil {
		return err
	}
	sched.SetAdapter(m)
	return nil
}
