// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/antispam"
	"github.com/keshon/warden/internal/commands"
	"github.com/keshon/warden/internal/config"
	"github.com/keshon/warden/internal/cooldown"
	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/logging"
	"github.com/keshon/warden/internal/middleware"
	"github.com/keshon/warden/internal/onebot"
	"github.com/keshon/warden/internal/regexsafe"
	"github.com/keshon/warden/internal/resolver"
	"github.com/keshon/warden/internal/storage"
	v "github.com/keshon/warden/internal/version"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/keshon/warden/pkg/jobmgr"
)


func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
}

func run() error {
	config.LoadDotEnv()
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.Info().Str("go", v.GoVersion).Msgf("Starting %s...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	analyzer := regexsafe.New(cfg.RegexMaxLength)
	detector := antispam.New(antispam.Config{
		HistorySize:         cfg.AntiSpam.HistorySize,
		SimilarityThreshold: cfg.AntiSpam.SimilarityThreshold,
		MinContentLength:    cfg.AntiSpam.MinContentLength,
		FloodWindow:         cfg.AntiSpam.FloodWindow,
		FloodMaxCount:       cfg.AntiSpam.FloodMaxCount,
		DecayPeriod:         cfg.AntiSpam.DecayPeriod,
		RecordRetention:     cfg.AntiSpam.RecordRetention,
	})

	// the transport needs the dispatcher and the dispatcher needs the
	// transport; the pool is assigned before the client starts reading
	var pool *dispatch.Pool
	client, err := onebot.New(onebot.Config{
		URL:         cfg.OneBotURL,
		Token:       cfg.OneBotToken,
		Proxy:       cfg.OneBotProxy,
		RateLimit:   cfg.OneBotRateLimit,
		CallTimeout: cfg.OneBotTimeout,
	}, func(_ context.Context, msg domain.Message) {
		// runs on the read loop; action responses queue behind it
		if !pool.TrySubmit(msg) {
			log.Warn().Str("stream", msg.StreamKey()).Int64("message", msg.ID).Msg("message dropped")
		}
	})
	if err != nil {
		return err
	}

	registry := cmd.NewRegistry()
	cmdDeps := commands.Deps{
		Aliases:  store,
		History:  store,
		Muter:    client,
		Analyzer: analyzer,
	}
	if cfg.AntiSpam.Enabled {
		cmdDeps.Warnings = detector
	}
	if err := commands.Register(registry, cmdDeps); err != nil {
		return err
	}

	gate := cooldown.New(client, cfg.IsSuperuser)
	deps := dispatch.Deps{
		Resolver: resolver.New(registry, store,
			resolver.WithAnalyzer(analyzer),
			resolver.WithMatchTimeout(cfg.RegexMatchTimeout)),
		Cooldown:  gate,
		Replier:   client,
		Moderator: client,
	}
	if cfg.AntiSpam.Enabled {
		deps.Detector = detector
	}
	engine := dispatch.New(dispatch.Config{
		Prefix:    cfg.CommandPrefix,
		Superuser: cfg.IsSuperuser,
		Penalty: antispam.Penalty{
			Base:       cfg.AntiSpam.MuteBase,
			Multiplier: cfg.AntiSpam.MuteMultiplier,
			Cap:        cfg.AntiSpam.MuteCap,
		},
		Middleware: []cmd.Middleware{middleware.WithCommandLogger(store)},
	}, deps)

	pool = dispatch.NewPool(cfg.DispatchWorkers, cfg.DispatchQueue, func(ctx context.Context, msg domain.Message) {
		engine.Handle(ctx, msg)
	})

	jobs := jobmgr.NewManager(ctx, jobmgr.LogReporter(log.With().Str("component", "jobs").Logger()))
	start := func(name string, runner func(ctx context.Context) error) error {
		return jobs.StartAsync(name, runner)
	}
	loop := func(fn func(ctx context.Context)) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			fn(ctx)
			return nil
		}
	}

	err = errors.Join(
		start("dispatcher", pool.Run),
		start("onebot", client.Run),
		start("antispam-sweeper", loop(func(ctx context.Context) { detector.Run(ctx, cfg.AntiSpam.SweepInterval) })),
		start("cooldown-sweeper", loop(func(ctx context.Context) { gate.Run(ctx, cfg.CooldownSweepInterval) })),
	)
	if err == nil && cfg.HistoryRetention > 0 {
		err = start("history-pruner", loop(func(ctx context.Context) {
			storage.RunHistoryPruner(ctx, store, time.Hour, cfg.HistoryRetention)
		}))
	}
	if err == nil && cfg.MetricsListen != "" {
		dispatch.RegisterStateGauges(prometheus.DefaultRegisterer, detector.Tracked, gate.Len)
		err = start("metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsListen)
		})
	}
	if err != nil {
		cancel()
		jobs.Wait()
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Received signal, shutting down...")
	case runErr = <-jobs.Errors():
		log.Error().Err(runErr).Msg("background job failed, shutting down...")
	}

	log.Info().Msg(jobs.Status())
	cancel()
	jobs.Wait()
	log.Info().Msg("Bot exited cleanly")
	return runErr
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
