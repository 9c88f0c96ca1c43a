package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agentscan/cmd/agentscan/scan"
	"agentscan/cmd/agentscan/server"
	"agentscan/pkg/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	settingsPath string
)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "agentscan",
		Short: "Agent-driven security assessment of configured sites",
		Long: `agentscan resolves each configured site, lets a team of reasoning agents plan,
review and assess a scan, executes the approved commands and writes a reviewed
findings report under the scans directory.`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			log.SetLevel(level)
			logger.SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Optional settings file (yaml/json/toml); environment variables override it")

	rootCmd.AddCommand(scan.NewScanCommand(&settingsPath, &verbose))
	rootCmd.AddCommand(scan.NewInitConfigCommand())
	rootCmd.AddCommand(scan.NewListSitesCommand())
	rootCmd.AddCommand(server.NewServerCommand(&settingsPath, &verbose))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
