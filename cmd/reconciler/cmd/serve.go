package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"order-reconciliation-service/cmd/reconciler/config"
	"order-reconciliation-service/internal/engine"
	"order-reconciliation-service/internal/jobs"
	"order-reconciliation-service/internal/report"
	"order-reconciliation-service/internal/server"
	"order-reconciliation-service/internal/store"
	"order-reconciliation-service/pkg/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Starts the HTTP API. Synchronous endpoints run the reconciliation
pipeline inline; report endpoints create a job and hand the work to the
configured dispatcher (Pub/Sub when configured, in-process otherwise).`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runServe(cmd.Context()))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// buildEngine opens the store and assembles the engine with the configured
// run lock.
func buildEngine(cfg *config.Config, log logger.Logger) (*store.Store, *engine.Engine, error) {
	st, err := store.Open(cfg.StoreConfig(), log)
	if err != nil {
		return nil, nil, err
	}

	var locker engine.RunLocker
	if cfg.UseRedisLock() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = engine.NewRedisLocker(redislock.New(client), cfg.Redis.LockKey, cfg.Redis.LockTTL)
	} else {
		locker = engine.NewLocalLocker()
	}

	eng := engine.New(st, engine.WithLogger(log), engine.WithLocker(locker))
	return st, eng, nil
}

// buildDispatcher picks the task transport: Pub/Sub when a project is
// configured, otherwise in-process goroutines backed by the same processor
// the worker runs.
func buildDispatcher(ctx context.Context, cfg *config.Config, st *store.Store, eng *engine.Engine, log logger.Logger) (jobs.Dispatcher, error) {
	if cfg.UsePubSub() {
		creds, err := cfg.PubSubCredentials()
		if err != nil {
			return nil, err
		}
		return jobs.NewPubSubDispatcher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, creds, log)
	}

	assembler, err := report.NewAssembler(st, st, cfg.AssemblerConfig(), log)
	if err != nil {
		return nil, err
	}
	processor := jobs.NewProcessor(eng, assembler, st, log)
	return jobs.NewLocalDispatcher(processor, log), nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.GetGlobalLogger()

	st, eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	dispatcher, err := buildDispatcher(ctx, cfg, st, eng, log)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(eng, st, dispatcher, cfg.Report.OutputDir, log)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
