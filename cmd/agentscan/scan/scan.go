package scan

import (
	"context"
	"fmt"

	"agentscan/internal/config"
	"agentscan/internal/notification"
	"agentscan/pkg/agents"
	"agentscan/pkg/engine"
	"agentscan/pkg/hooks"
	"agentscan/pkg/logger"
	"agentscan/pkg/runner"
	"agentscan/pkg/session"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options holds the scan command's flags.
type Options struct {
	SitesPath     string
	NoBanner      bool
	NoSessionLogs bool
	NotifyStart   bool
	NotifySkipped bool
}

// App wires settings into an orchestrator for one CLI run.
type App struct {
	settings      *config.Settings
	opts          *Options
	logger        *logger.Logger
	discordClient *notification.NotificationClient
}

func NewApp(settings *config.Settings, opts *Options, verbose bool) *App {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	appLogger := logger.NewLogger(level)

	var discordClient *notification.NotificationClient
	if settings.Discord.Token != "" {
		client, err := notification.NewNotificationClient(settings.Discord.Token, settings.Discord.ChannelID)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to initialize Discord client")
		} else {
			discordClient = client
			appLogger.Info("Discord notifications enabled")
		}
	} else {
		appLogger.Debug("DISCORD_TOKEN not set - Discord notifications disabled")
	}

	return &App{
		settings:      settings,
		opts:          opts,
		logger:        appLogger,
		discordClient: discordClient,
	}
}

func (a *App) Close() error {
	if a.discordClient != nil {
		return a.discordClient.Close()
	}
	return nil
}

// Executor builds the execution stage selected in settings.
func Executor(settings *config.Settings, l *logger.Logger) workflow.Executor {
	shell := runner.NewShellExecutor(runner.WithRunnerLogger(l))
	if settings.Executor == config.ExecutorNmap {
		return runner.NewNmapExecutor(shell)
	}
	return shell
}

// Orchestrator assembles the engine from settings. Extra observers are
// appended after the Discord hook.
func Orchestrator(settings *config.Settings, l *logger.Logger, sessionLogs bool, observers ...engine.Observer) (*engine.Orchestrator, error) {
	client, err := agents.NewAzureClient(settings.AzureConfig(), agents.WithClientLogger(l))
	if err != nil {
		return nil, err
	}
	team := agents.NewTeam(client,
		agents.WithTeamLogger(l),
		agents.WithTemperature(settings.Azure.Temperature),
	)

	opts := []engine.OptFunc{
		engine.WithResolver(settings.NewResolver()),
		engine.WithStore(session.NewStore(settings.ScansDir)),
		engine.WithStages(team.Stages(Executor(settings, l))),
		engine.WithParameters(settings.Scan),
		engine.WithLimits(settings.Limits),
		engine.WithLogger(l),
		engine.WithSessionLogs(sessionLogs, nil),
	}
	for _, obs := range observers {
		opts = append(opts, engine.WithObserver(obs))
	}
	return engine.NewOrchestrator(opts...)
}

// Run processes every configured site. Only configuration problems are
// returned as errors; per-target failures are reported in the summary.
func (a *App) Run(ctx context.Context, sites []workflow.SiteConfig) (engine.RunSummary, error) {
	var observers []engine.Observer
	if a.discordClient != nil {
		observers = append(observers, hooks.NewNotifierHook(a.discordClient, hooks.NotifierHookConfig{
			NotifyStart:   a.opts.NotifyStart,
			NotifySkipped: a.opts.NotifySkipped,
		}))
	}

	orch, err := Orchestrator(a.settings, a.logger, !a.opts.NoSessionLogs, observers...)
	if err != nil {
		return engine.RunSummary{}, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	a.logger.WithFields(logger.Fields{
		"sites":     len(sites),
		"scans_dir": a.settings.ScansDir,
		"executor":  a.settings.Executor,
	}).Info("Starting assessment run")

	return orch.RunAll(ctx, sites), nil
}

func NewScanCommand(settingsPath *string, verbose *bool) *cobra.Command {
	opts := &Options{}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the agent workflow against every configured site",
		Long: `Run the agent workflow against every site in the sites file. Targets are
processed one at a time; a target that fails is recorded and the run moves on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sites, err := config.LoadSites(opts.SitesPath)
			if err != nil {
				return err
			}
			settings, err := config.LoadSettings(*settingsPath)
			if err != nil {
				return err
			}
			if err := settings.RequireInference(); err != nil {
				return err
			}

			if !opts.NoBanner {
				PrintBanner(cmd.OutOrStdout())
			}

			app := NewApp(settings, opts, *verbose)
			defer func() {
				if closeErr := app.Close(); closeErr != nil {
					app.logger.WithError(closeErr).Error("Error closing application")
				}
			}()

			summary, err := app.Run(cmd.Context(), sites)
			if err != nil {
				return err
			}
			PrintSummary(cmd.OutOrStdout(), summary)

			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}
			return nil
		},
	}

	scanCmd.Flags().StringVarP(&opts.SitesPath, "config", "c", config.DefaultSitesFile, "Sites file (json or yaml)")
	scanCmd.Flags().BoolVar(&opts.NoBanner, "no-banner", false, "Do not print the banner")
	scanCmd.Flags().BoolVar(&opts.NoSessionLogs, "no-session-logs", false, "Do not write workflow.log/error.log into session directories")
	scanCmd.Flags().BoolVar(&opts.NotifyStart, "notify-start", false, "Also notify Discord when a target starts")
	scanCmd.Flags().BoolVar(&opts.NotifySkipped, "notify-skipped", false, "Also notify Discord about unresolvable targets")

	return scanCmd
}

func NewInitConfigCommand() *cobra.Command {
	var (
		path  string
		force bool
	)

	initCmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a sample sites file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := config.WriteSampleSites(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample sites file written to %s\n", path)
			return nil
		},
	}

	initCmd.Flags().StringVarP(&path, "output", "o", "config.yaml", "Where to write the sample file (.json for JSON, anything else for YAML)")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return initCmd
}

func NewListSitesCommand() *cobra.Command {
	var path string

	listCmd := &cobra.Command{
		Use:   "list-sites",
		Short: "List the sites a scan would process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sites, err := config.LoadSites(path)
			if err != nil {
				return err
			}
			PrintSites(cmd.OutOrStdout(), sites)
			return nil
		},
	}

	listCmd.Flags().StringVarP(&path, "config", "c", config.DefaultSitesFile, "Sites file (json or yaml)")

	return listCmd
}
