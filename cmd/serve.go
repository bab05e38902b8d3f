package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/server"
	"github.com/spf13/cobra"
)

const queueDrainTimeout = 30 * time.Second

func init() {
	cmdRoot.AddCommand(cmdServe())
}

func cmdServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(ctx, cfg)
			defer a.Close()

			queue := jobs.NewQueue(a.processor, jobs.Options{
				Workers: cfg.Server.Workers,
				Size:    cfg.Server.QueueSize,
			})
			queue.Start()

			srv := server.New(server.Options{
				Config:      cfg.Server,
				MaxFileSize: cfg.Transcode.MaxFileSize,
				Queue:       queue,
				Comparer:    a.comparator,
				Registry:    a.registry,
			})
			runErr := srv.Run(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
			defer cancel()
			if err := queue.Stop(drainCtx); err != nil {
				logging.WithContext(cmd.Context()).Warn("Job queue did not drain in time", logging.Fields{"error": err.Error()})
			}
			return runErr
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}
