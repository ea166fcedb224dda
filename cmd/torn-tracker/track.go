package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/skillerious/torn-target-tracker/pkg/batch"
	"github.com/skillerious/torn-target-tracker/pkg/config"
	"github.com/skillerious/torn-target-tracker/pkg/logging"
	"github.com/skillerious/torn-target-tracker/pkg/ratelimit"
	"github.com/skillerious/torn-target-tracker/pkg/store"
	"github.com/skillerious/torn-target-tracker/pkg/torn"
	"github.com/skillerious/torn-target-tracker/pkg/tracker"
)

const shutdownTimeout = 10 * time.Second

// trackCmd runs the fetch pipeline.
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the fetch pipeline",
	Long: `Run the fetch pipeline over the tracked target list.

The command will:
  - Load targets and the ignore list
  - Seed last-known records from the persisted snapshot
  - Fetch every target through the shared rate limiter
  - Persist the snapshot periodically and on completion

With auto_refresh configured the pipeline re-runs on that interval until
interrupted (Ctrl+C) or SIGTERM; otherwise it exits after one run.

Example:
  torn-tracker track -c config.yaml
  torn-tracker track -c config.yaml --pretty`,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)

	trackCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	trackCmd.Flags().BoolP("pretty", "p", false, "human-readable console logs instead of JSON")
	_ = trackCmd.MarkFlagRequired("config")
}

func runTrack(cmd *cobra.Command, args []string) error {
	// Local .env may carry TORN_API_KEY; absence is fine.
	_ = godotenv.Load()

	configFile, _ := cmd.Flags().GetString("config")
	pretty, _ := cmd.Flags().GetBool("pretty")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: pretty,
		Output: cmd.ErrOrStderr(),
	})
	logger := logging.NewLogger("main")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	targets, err := store.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}
	if len(targets) == 0 {
		logger.Warn().Str("file", cfg.TargetsFile).Msg("No targets to track")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ignored, err := st.LoadIgnored(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ignore list: %w", err)
	}
	cached, err := st.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	controller, err := buildPipeline(cfg, st)
	if err != nil {
		return err
	}

	controller.SetTargets(targets)
	controller.SetIgnored(ignored)
	controller.Seed(cached)

	logger.Info().
		Int("targets", len(targets)).
		Int("ignored", len(ignored)).
		Int("cached", len(cached)).
		Int("concurrency", cfg.Concurrency).
		Msg("Tracker starting")

	// runDone fires when a single-shot run finishes its last target.
	runDone := make(chan struct{})
	var once sync.Once
	controller.OnProgress(func(p tracker.Progress) {
		if p.Done == p.Total {
			once.Do(func() { close(runDone) })
		}
	})

	if cfg.Listen != "" {
		startHTTP(ctx, cfg.Listen)
	}

	if err := controller.Refresh(); err != nil {
		return fmt.Errorf("failed to start refresh: %w", err)
	}
	controller.Start(ctx)

	if cfg.AutoRefresh.Duration() > 0 {
		<-ctx.Done()
	} else {
		select {
		case <-runDone:
		case <-ctx.Done():
		}
	}

	if !controller.Shutdown(shutdownTimeout) {
		logger.Warn().Dur("timeout", shutdownTimeout).Msg("Shutdown timed out, forcing exit")
		return nil
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// buildPipeline wires limiter, client, pool, aggregator, and controller.
func buildPipeline(cfg *config.Config, st store.Store) (*tracker.Controller, error) {
	limiter, err := ratelimit.New(
		cfg.RateLimit.MaxCalls,
		cfg.RateLimit.Period.Duration(),
		cfg.RateLimit.MinInterval.Duration(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	clientCfg := torn.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.MaxAttempts = cfg.Retry.MaxAttempts
	clientCfg.BaseBackoff = cfg.Retry.BaseBackoff.Duration()
	clientCfg.MaxBackoff = cfg.Retry.MaxBackoff.Duration()
	clientCfg.Timeout = cfg.Timeout.Duration()

	client, err := torn.New(clientCfg, limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	fetcher, err := batch.New(client, batch.Config{Concurrency: cfg.Concurrency})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch fetcher: %w", err)
	}

	agg := tracker.NewAggregator(st, cfg.SaveEvery)

	controller, err := tracker.NewController(fetcher, agg, tracker.ControllerConfig{
		AutoRefresh: cfg.AutoRefresh.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	return controller, nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store.NewRedis(client), nil
	default:
		st, err := store.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	}
}

// startHTTP serves /metrics and /health until ctx is cancelled.
func startHTTP(ctx context.Context, addr string) {
	logger := logging.NewLogger("http")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics listener failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
