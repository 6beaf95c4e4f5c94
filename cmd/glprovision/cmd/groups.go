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
	"glprovision/internal/resolve"
)

var (
	groupsConfigPath string
	groupsLogLevel   string
)

// GroupsCmd lists the subgroup tree under each configured root group.
// Read-only; useful for seeing what a group-level webhook already covers.
var GroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List each configured root group and its subgroup tree",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runGroups())
	},
}

func init() {
	GroupsCmd.Flags().StringVar(&groupsConfigPath, "config", "", "path to configuration YAML file (required)")
	GroupsCmd.Flags().StringVar(&groupsLogLevel, "log-level", "", "log level: debug, info, warn, error")
	_ = GroupsCmd.MarkFlagRequired("config")
}

func runGroups() int {
	setupLogging(groupsLogLevel)

	cfg, err := loadConfig(groupsConfigPath, groupsLogLevel, false)
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

	failed := false
	for _, identifier := range cfg.RootGroups {
		groupID, err := resolve.Group(ctx, client, identifier)
		if err != nil {
			log.Error().Err(err).Str("group", identifier).Msg("could not resolve group")
			failed = true
			continue
		}
		groups, err := p.Subtree(ctx, groupID)
		if err != nil {
			log.Error().Err(err).Str("group", identifier).Msg("could not list subtree")
			failed = true
			continue
		}
		render.Subtree(identifier, groups)
	}

	if failed {
		return provision.ExitCheckFailed
	}
	return provision.ExitOK
}
