package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"agentscan/api/routes"
	"agentscan/cmd/agentscan/scan"
	"agentscan/internal/config"
	"agentscan/internal/dao"
	"agentscan/internal/database"
	"agentscan/internal/services"
	"agentscan/pkg/engine"
	"agentscan/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type ServerOpts struct {
	Addr string
}

func NewServerCommand(settingsPath *string, verbose *bool) *cobra.Command {
	opts := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the agentscan API server",
		Long: `Start the REST API that queues single-target runs and records their progress
in postgres. Runs are processed one at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			settings, err := config.LoadSettings(*settingsPath)
			if err != nil {
				return err
			}
			if err := settings.RequireInference(); err != nil {
				return err
			}
			addr := settings.Server.Addr
			if opts.Addr != "" {
				addr = opts.Addr
			}

			level := logrus.InfoLevel
			if *verbose {
				level = logrus.DebugLevel
			}
			l := logger.NewLogger(level)

			db, err := database.InitDB(&settings.Database)
			if err != nil {
				return err
			}

			factory := func(observers ...engine.Observer) (services.Runner, error) {
				return scan.Orchestrator(settings, l, true, observers...)
			}

			ctx := cmd.Context()
			runService := services.NewRunService(ctx, dao.NewRunDAO(db), factory,
				services.WithQueue(engine.NewRunQueue(1, l)),
				services.WithServiceLogger(l),
			)
			if _, err := runService.RecoverInterrupted(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    addr,
				Handler: routes.InitRouter(runService),
			}

			errCh := make(chan error, 1)
			go func() {
				l.WithFields(logger.Fields{"addr": addr}).Info("API server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				l.Info("Shutting down API server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					l.WithError(err).Warn("API server shutdown")
				}
			}

			runService.Wait()
			return nil
		},
	}

	serverCmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "Listen address (overrides server.addr)")

	return serverCmd
}
