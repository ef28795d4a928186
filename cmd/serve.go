package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/scheduler"
	"github.com/sells-group/prospect-cli/internal/server"
)

var (
	servePort        int
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stage scheduler and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []server.Option
		opts = append(opts, server.WithLocks(env.Locks))
		if env.SitesDir != "" {
			opts = append(opts, server.WithSitesDir(env.SitesDir))
		}
		handler := server.New(cfg.Server, env.Store, env.Pipeline, opts...)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		if !serveNoScheduler {
			sched := scheduler.New(stageJobs(env.Pipeline, cfg.Schedule))
			g.Go(func() error {
				sched.Run(gctx)
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		return g.Wait()
	},
}

// stageJobs maps every pipeline stage to its configured interval.
func stageJobs(p *pipeline.Pipeline, s config.ScheduleConfig) []scheduler.Job {
	intervals := map[string]time.Duration{
		pipeline.StageDiscovery:    s.Discovery,
		pipeline.StageEnrichment:   s.Enrichment,
		pipeline.StageOutreach:     s.Outreach,
		pipeline.StageReply:        s.Reply,
		pipeline.StagePrototype:    s.Prototype,
		pipeline.StageConversation: s.Conversation,
	}
	jobs := make([]scheduler.Job, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		jobs = append(jobs, scheduler.Job{
			Name:     stage,
			Interval: intervals[stage],
			Run: func(ctx context.Context) error {
				_, err := p.Run(ctx, stage)
				return err
			},
		})
	}
	return jobs
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve the admin API without running stages on a schedule")
	rootCmd.AddCommand(serveCmd)
}
