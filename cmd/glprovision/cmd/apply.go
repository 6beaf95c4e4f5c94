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
	applyConfigPath string
	applyReportPath string
	applyLogLevel   string
	applyDryRun     bool
)

// ApplyCmd provisions tokens and webhooks for every configured target.
var ApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Provision tokens and webhooks for the configured groups and projects",
	Long: `Resolve every configured root group and project, then create or verify
the integration access token and webhook on each.

Exit codes:
  0  all targets processed without errors
  2  errors occurred but at least one target was fully processed
  3  authentication failed or no target succeeded`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runApply())
	},
}

func init() {
	ApplyCmd.Flags().StringVar(&applyConfigPath, "config", "", "path to configuration YAML file (required)")
	ApplyCmd.Flags().StringVar(&applyReportPath, "report", "", "path to save the JSON report")
	ApplyCmd.Flags().StringVar(&applyLogLevel, "log-level", "", "log level: debug, info, warn, error")
	ApplyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "perform a dry run, no changes made")
	_ = ApplyCmd.MarkFlagRequired("config")
}

func runApply() int {
	setupLogging(applyLogLevel)

	cfg, err := loadConfig(applyConfigPath, applyLogLevel, applyDryRun)
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

	client := gitlab.NewClient(cfg.GitLabBaseURL, token, gitlab.WithDryRun(cfg.DryRun))
	p := provision.New(cfg, client, token)

	code := p.Run(ctx)
	render.Apply(p.Report(), token)
	saveReport(p, applyReportPath)
	return code
}

func saveReport(p *provision.Provisioner, path string) {
	if path == "" {
		return
	}
	if err := p.Report().Save(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to save report")
		return
	}
	log.Info().Str("path", path).Msg("report saved")
}
