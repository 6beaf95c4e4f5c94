package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"glprovision/internal/gitlab"
	"glprovision/internal/provision"
	"glprovision/internal/render"
)

var (
	checkConfigPath string
	checkReportPath string
	checkLogLevel   string
)

// CheckCmd validates the configuration against live GitLab state without
// creating or modifying anything.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and remote state without making changes",
	Long: `Probe authentication, target existence, permissions, token presence and
webhook presence for every configured group and project. Read-only.

Exit codes:
  0  no check failed
  1  at least one check failed`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runCheck())
	},
}

func init() {
	CheckCmd.Flags().StringVar(&checkConfigPath, "config", "", "path to configuration YAML file (required)")
	CheckCmd.Flags().StringVar(&checkReportPath, "report", "", "path to save the JSON report")
	CheckCmd.Flags().StringVar(&checkLogLevel, "log-level", "", "log level: debug, info, warn, error")
	_ = CheckCmd.MarkFlagRequired("config")
}

func runCheck() int {
	setupLogging(checkLogLevel)

	cfg, err := loadConfig(checkConfigPath, checkLogLevel, false)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return provision.ExitFailure
	}
	setupLogging(cfg.LogLevel)

	token, err := credentialFromEnv()
	if err != nil {
		log.Error().Err(err).Msg("missing credential")
		return provision.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gitlab.NewClient(cfg.GitLabBaseURL, token)
	p := provision.New(cfg, client, token)

	results := p.Check(ctx)
	render.Checks(results)
	saveReport(p, checkReportPath)

	if provision.HasFailures(results) {
		return provision.ExitCheckFailed
	}
	return provision.ExitOK
}
