// Package render prints the human-readable run output. This is the one
// place newly created secrets are disclosed; log output never carries them.
package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"glprovision/internal/gitlab"
	"glprovision/internal/report"
)

const rule = "================================================================================"

// Apply prints the configuration summary an operator needs to finish the
// integration setup, followed by the run statistics.
func Apply(rep *report.Report, patToken string) {
	fmt.Println()
	fmt.Println(rule)
	color.Cyan("CONFIGURATION SUMMARY")
	fmt.Println(rule)
	fmt.Println("\nProvide the following information to complete the integration setup:")
	fmt.Println()

	for i, s := range rep.ConfigurationSummary {
		color.Cyan("--- Root Group %d: %s ---", i+1, s.GroupPath)
		fmt.Printf("  Group ID:           %d\n", s.GroupID)

		switch {
		case s.PersonalAccessTokenUsed:
			fmt.Println("  Access Token:       Using Personal Access Token (from environment)")
			fmt.Printf("                      Value: %s\n", maskToken(patToken))
		case s.GroupAccessToken != "":
			fmt.Printf("  Group Access Token: %s\n", s.GroupAccessToken)
			color.Yellow("                      SAVE THIS - shown only once!")
		default:
			fmt.Println("  Group Access Token: Already exists (not shown)")
		}
		fmt.Println("                      Scopes: api, read_repository")

		fmt.Printf("  Webhook URL:        %s\n", s.WebhookURL)
		fmt.Printf("  Webhook Secret:     %s\n", s.WebhookSecret)
		if s.WebhookSecretAutoGenerated {
			color.Yellow("                      AUTO-GENERATED - SAVE THIS!")
		}
		fmt.Println()
	}

	for i, s := range rep.ProjectConfigurationSummary {
		color.Cyan("--- Project %d: %s ---", i+1, s.ProjectPath)
		fmt.Printf("  Project ID:         %d\n", s.ProjectID)

		if s.CoveredByGroupWebhook {
			color.Yellow("  Group Coverage:     Covered by group webhook (project webhook also configured)")
		}

		if s.ProjectAccessToken != "" {
			fmt.Printf("  Project Token:      %s\n", s.ProjectAccessToken)
			color.Yellow("                      SAVE THIS - shown only once!")
		} else {
			fmt.Println("  Project Token:      Already exists (not shown)")
		}

		fmt.Printf("  Webhook URL:        %s\n", s.WebhookURL)
		fmt.Printf("  Webhook Secret:     %s\n", s.WebhookSecret)
		fmt.Println()
	}

	fmt.Println(rule)
	fmt.Println()
	fmt.Println("SUMMARY")
	fmt.Printf("  Groups processed:   %d (skipped: %d)\n", rep.GroupsProcessed, rep.GroupsSkipped)
	fmt.Printf("  Projects processed: %d (skipped: %d)\n", rep.ProjectsProcessed, rep.ProjectsSkipped)
	fmt.Printf("  Tokens:             %d created, %d verified\n", len(rep.TokensCreated), len(rep.TokensVerified))
	fmt.Printf("  Webhooks:           %d created, %d updated, %d unchanged\n",
		len(rep.WebhooksCreated), len(rep.WebhooksUpdated), len(rep.WebhooksUnchanged))
	if len(rep.Errors) > 0 {
		color.Red("  Errors:             %d", len(rep.Errors))
		for _, e := range rep.Errors {
			color.Red("    - %s: %s", errorTarget(e), e.Error)
		}
	} else {
		color.Green("  Errors:             0")
	}
	fmt.Println()
}

// Checks prints an aligned check-mode status table and the totals line.
func Checks(results []report.CheckResult) {
	fmt.Println()
	fmt.Println(rule)
	color.Cyan("CONFIGURATION CHECK RESULTS")
	fmt.Println(rule)
	fmt.Println()
	fmt.Printf("%-8s%-35s%-18s%s\n", "Status", "Target", "Check", "Details")
	fmt.Printf("%-8s%-35s%-18s%s\n", "------", "------", "-----", "-------")

	var passes, warns, fails int
	for _, r := range results {
		statusColor := color.New(color.FgGreen)
		switch r.Status {
		case report.StatusWarn:
			statusColor = color.New(color.FgYellow)
			warns++
		case report.StatusFail:
			statusColor = color.New(color.FgRed)
			fails++
		default:
			passes++
		}
		statusColor.Printf("%-8s", strings.ToUpper(string(r.Status)))
		fmt.Printf("%-35s%-18s%s\n", r.Target, r.CheckName, r.Message)
	}

	fmt.Println()
	fmt.Printf("Total: %d passed, %d warnings, %d failed\n", passes, warns, fails)
	fmt.Println(rule)
}

// Subtree prints the groups discovered under one configured root group.
func Subtree(rootIdentifier string, groups []gitlab.Group) {
	color.Cyan("Root group %s: %d group(s)", rootIdentifier, len(groups))
	for _, g := range groups {
		fmt.Printf("  %-10d %s\n", g.ID, g.FullPath)
	}
	fmt.Println()
}

// maskToken keeps the first 8 and last 4 characters of a credential.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}

func errorTarget(e report.ErrorEntry) string {
	switch {
	case e.Target != "":
		return e.Target
	case e.GroupID != 0:
		return fmt.Sprintf("group %d", e.GroupID)
	case e.ProjectID != 0:
		return fmt.Sprintf("project %d", e.ProjectID)
	}
	return "run"
}
