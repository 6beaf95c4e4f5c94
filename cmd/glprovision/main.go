// glprovision - provision GitLab groups and projects for the Qodo
// merge-request integration.
//
// A single binary that idempotently creates or verifies the access tokens
// and webhooks the integration needs, without duplicating webhooks already
// inherited from a parent group.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"glprovision/cmd/glprovision/cmd"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "glprovision",
		Short: "Provision GitLab access tokens and webhooks for the Qodo integration",
		Long: `glprovision reconciles access tokens and webhooks across a set of GitLab
root groups and individual projects so the Qodo integration has exactly the
credentials and event hooks it needs.

Runs are idempotent: existing valid tokens are never rotated and webhooks
are only written when their configuration drifts from the desired template.

Environment:
  GITLAB_ADMIN_TOKEN   GitLab credential used for every API call
  GITLAB_BOT_PAT       Fallback credential when GITLAB_ADMIN_TOKEN is unset`,
	}

	cmd.SetVersion(Version)

	rootCmd.AddCommand(cmd.ApplyCmd)
	rootCmd.AddCommand(cmd.CheckCmd)
	rootCmd.AddCommand(cmd.GroupsCmd)
	rootCmd.AddCommand(cmd.VersionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
