package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/schedule"
	"github.com/v0xg/formcheck/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ctrl := controller.New(ctx, a.executor, a.log)
			sched := schedule.New(a.store, ctrl, a.log)
			if err := sched.Restore(ctx); err != nil {
				return err
			}

			srv := server.New(server.Deps{
				Jobs:      ctrl,
				Explorer:  a.executor,
				Templates: a.templates,
				History:   a.store,
				Schedules: sched,
				Table:     a.table,
				Suggester: a.suggester,
			}, server.Options{
				ArtifactsDir: a.cfg.Paths.Artifacts,
				ReportsDir:   a.cfg.Paths.Reports,
				DiscoverWait: a.cfg.Engine.DiscoverWait,
				StartRate:    a.cfg.Server.StartRate,
				StartBurst:   a.cfg.Server.StartBurst,
			}, a.log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, addr, a.cfg.Server.ShutdownTimeout)
			})
			g.Go(func() error {
				sched.Start()
				<-gctx.Done()
				<-sched.Stop().Done()
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := ctrl.Shutdown(shutdownCtx); err != nil {
					a.log.Warn("Jobs still running at shutdown", zap.Error(err))
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}
