// Package provision drives a full reconciliation run: resolve targets,
// ensure tokens and webhooks in order, and fold every outcome into a single
// report.
package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"glprovision/internal/config"
	"glprovision/internal/gitlab"
	"glprovision/internal/reconcile"
	"glprovision/internal/report"
	"glprovision/internal/resolve"
)

// Process exit statuses shared by the apply and check commands.
const (
	ExitOK             = 0
	ExitCheckFailed    = 1
	ExitPartialSuccess = 2
	ExitFailure        = 3
)

// Provisioner owns one run against one GitLab instance. Targets are
// processed strictly in configuration order, one at a time.
type Provisioner struct {
	cfg      *config.Config
	client   *gitlab.Client
	rep      *report.Report
	patToken string

	webhookSecret       string
	secretAutoGenerated bool

	tokens *reconcile.Tokens
	hooks  *reconcile.Webhooks
}

// New builds a Provisioner. When the config carries no webhook secret a
// fresh one is generated for the whole run and flagged in the summaries.
func New(cfg *config.Config, client *gitlab.Client, patToken string) *Provisioner {
	rep := report.New()

	secret := cfg.Webhooks.SecretToken
	autoGenerated := false
	if secret == "" {
		secret = NewWebhookSecret()
		autoGenerated = true
		log.Info().Msg("auto-generated webhook secret")
	}

	return &Provisioner{
		cfg:                 cfg,
		client:              client,
		rep:                 rep,
		patToken:            patToken,
		webhookSecret:       secret,
		secretAutoGenerated: autoGenerated,
		tokens: &reconcile.Tokens{
			Client:       client,
			Mode:         cfg.AuthMode,
			LifetimeDays: cfg.TokenExpiresInDays,
			Report:       rep,
		},
		hooks: &reconcile.Webhooks{
			Client: client,
			URL:    cfg.Webhooks.MergeRequestURL,
			Secret: secret,
			Report: rep,
		},
	}
}

// Report exposes the run accumulator for rendering and persistence.
func (p *Provisioner) Report() *report.Report { return p.rep }

// PATToken returns the shared credential, used by the renderer to mask it
// in the summary when bot_user_pat mode is active.
func (p *Provisioner) PATToken() string { return p.patToken }

// Run executes apply mode and returns the process exit status.
func (p *Provisioner) Run(ctx context.Context) int {
	log.Info().Msg("starting GitLab integration setup")

	if !p.verifyAuth(ctx) {
		return ExitFailure
	}

	// Phase 1: root groups, exactly as named. No subgroup recursion.
	configured := make(map[int64]bool)
	for _, identifier := range p.cfg.RootGroups {
		log.Info().Str("group", identifier).Msg("processing root group")

		groupID, err := resolve.Group(ctx, p.client, identifier)
		if err != nil {
			log.Error().Err(err).Str("group", identifier).Msg("could not resolve group")
			p.rep.GroupsSkipped++
			p.rep.AddError(report.ErrorEntry{
				Target:    "group:" + identifier,
				Operation: "resolve_group",
				Error:     err.Error(),
			})
			continue
		}
		configured[groupID] = true

		var createdToken string
		if p.cfg.AuthMode == config.AuthGroupTokenPerRootGroup {
			createdToken = p.tokens.Ensure(ctx, reconcile.GroupTarget(groupID))
		}

		p.addGroupSummary(ctx, groupID, createdToken)

		// The group counts as processed once reached; a webhook failure is
		// already recorded as its own error entry.
		p.hooks.Ensure(ctx, reconcile.GroupTarget(groupID))
		p.rep.GroupsProcessed++
	}

	// Phase 2: individual projects.
	if len(p.cfg.Projects) > 0 {
		log.Info().Msg("processing individual projects")
		for _, identifier := range p.cfg.Projects {
			p.processProject(ctx, identifier, configured)
		}
	}

	return p.exitStatus()
}

func (p *Provisioner) verifyAuth(ctx context.Context) bool {
	user, err := p.client.CurrentUser(ctx)
	if err != nil {
		log.Error().Err(err).Msg("authentication failed")
		return false
	}
	log.Info().Str("username", user.Username).Str("name", user.Name).Msg("authenticated")
	return true
}

func (p *Provisioner) processProject(ctx context.Context, identifier string, configured map[int64]bool) {
	log.Info().Str("project", identifier).Msg("processing project")

	projectID, err := resolve.Project(ctx, p.client, identifier)
	if err != nil {
		log.Error().Err(err).Str("project", identifier).Msg("could not resolve project")
		p.rep.ProjectsSkipped++
		p.rep.AddError(report.ErrorEntry{
			Target:    "project:" + identifier,
			Operation: "resolve_project",
			Error:     err.Error(),
		})
		return
	}

	// Coverage is informational only: a covering group webhook never
	// suppresses project-level provisioning.
	coveringGroup, covered := resolve.CoveringGroup(ctx, p.client, projectID, configured)
	if covered {
		log.Warn().Str("project", identifier).Int64("covering_group", coveringGroup).
			Msg("already covered by group webhook, project token and webhook will still be created")
	}

	createdToken := p.tokens.Ensure(ctx, reconcile.ProjectTarget(projectID))
	webhookOK := p.hooks.Ensure(ctx, reconcile.ProjectTarget(projectID))

	if webhookOK {
		p.addProjectSummary(ctx, projectID, createdToken, covered)
		p.rep.ProjectsProcessed++
	} else {
		p.rep.ProjectsSkipped++
	}
}

func (p *Provisioner) addGroupSummary(ctx context.Context, groupID int64, createdToken string) {
	var group gitlab.Group
	if err := p.client.Get(ctx, fmt.Sprintf("/api/v4/groups/%d", groupID), nil, &group); err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Msg("could not fetch group details for summary")
		return
	}

	usingPAT := p.cfg.AuthMode == config.AuthBotUserPAT
	summary := report.GroupSummary{
		GroupID:                    groupID,
		GroupPath:                  group.FullPath,
		PersonalAccessTokenUsed:    usingPAT,
		WebhookSecret:              p.webhookSecret,
		WebhookSecretAutoGenerated: p.secretAutoGenerated,
		WebhookURL:                 p.cfg.Webhooks.MergeRequestURL,
	}
	if !usingPAT {
		summary.GroupAccessToken = createdToken
	}
	p.rep.ConfigurationSummary = append(p.rep.ConfigurationSummary, summary)
}

func (p *Provisioner) addProjectSummary(ctx context.Context, projectID int64, createdToken string, covered bool) {
	var project gitlab.Project
	if err := p.client.Get(ctx, fmt.Sprintf("/api/v4/projects/%d", projectID), nil, &project); err != nil {
		log.Warn().Err(err).Int64("project_id", projectID).Msg("could not fetch project details for summary")
		return
	}

	p.rep.ProjectConfigurationSummary = append(p.rep.ProjectConfigurationSummary, report.ProjectSummary{
		ProjectID:             projectID,
		ProjectPath:           project.PathWithNamespace,
		ProjectAccessToken:    createdToken,
		WebhookSecret:         p.webhookSecret,
		WebhookURL:            p.cfg.Webhooks.MergeRequestURL,
		CoveredByGroupWebhook: covered,
	})
}

// exitStatus maps the report to the apply-mode exit policy: clean run, 0;
// errors alongside at least one fully processed target, 2; otherwise 3.
func (p *Provisioner) exitStatus() int {
	if len(p.rep.Errors) == 0 {
		return ExitOK
	}
	if p.rep.GroupsProcessed+p.rep.ProjectsProcessed > 0 {
		return ExitPartialSuccess
	}
	return ExitFailure
}
