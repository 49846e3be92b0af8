package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/mentra/internal/companion"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/policy"
)

const shutdownTimeout = 10 * time.Second

func newDaemonCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the companion and serve its message channel",
		Long: "Serves POST /messages and POST /navigate on MENTRA_LISTEN_ADDR, asks reflection " +
			"questions in this terminal and prunes expired override rules in the background.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), g)
		},
	}
}

func runDaemon(ctx context.Context, g *Globals) error {
	e, err := openEnv(ctx, newPrompter(g), false)
	if err != nil {
		return err
	}
	defer e.Close()

	e.log.Info("starting_companion",
		zap.String("listen_addr", e.cfg.ListenAddr),
		zap.String("api_url", logpkg.SanitizeURL(e.cfg.APIURL)),
		zap.String("data_dir", logpkg.SanitizePath(e.cfg.DataDir)),
		zap.Bool("debug_mode", e.cfg.Debug),
	)
	if _, err := e.agent.Sync(ctx); err != nil {
		e.log.Warn("initial_sync_failed", zap.String("error", logpkg.SanitizeError(err)))
	}

	srv := &http.Server{
		Addr:              e.cfg.ListenAddr,
		Handler:           companion.NewHandler(e.agent, e.agent, e.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		err := policy.NewSweeper(e.store, e.cfg.SweepInterval, e.log).Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil {
		e.log.Error("companion_stopped_with_error", zap.Error(err))
		return err
	}
	e.log.Info("companion_stopped")
	return nil
}
