package provision

import (
	"context"
	"fmt"

	"glprovision/internal/gitlab"
	"glprovision/internal/reconcile"
	"glprovision/internal/report"
	"glprovision/internal/resolve"
)

// Check runs read-only validation probes against every configured target.
// No resource is created or modified. Results are returned and also stored
// on the report.
func (p *Provisioner) Check(ctx context.Context) []report.CheckResult {
	var results []report.CheckResult
	add := func(target, targetType, checkName string, status report.CheckStatus, format string, args ...any) {
		results = append(results, report.CheckResult{
			Target:     target,
			TargetType: targetType,
			CheckName:  checkName,
			Status:     status,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	user, err := p.client.CurrentUser(ctx)
	if err != nil {
		add("auth", "auth", "authentication", report.StatusFail, "Authentication failed: %v", err)
		p.rep.CheckResults = results
		return results
	}
	add("auth", "auth", "authentication", report.StatusPass, "Authenticated as %s", user.Username)

	configured := make(map[int64]bool)

	for _, identifier := range p.cfg.RootGroups {
		target := "group:" + identifier

		groupID, err := resolve.Group(ctx, p.client, identifier)
		if err != nil {
			add(target, "group", "exists", report.StatusFail, "Group not found: %s", identifier)
			continue
		}
		add(target, "group", "exists", report.StatusPass, "Group ID: %d", groupID)
		configured[groupID] = true

		p.checkTokens(ctx, &results, target, reconcile.GroupTarget(groupID), "Owner")
		p.checkWebhook(ctx, &results, target, reconcile.GroupTarget(groupID))
	}

	for _, identifier := range p.cfg.Projects {
		target := "project:" + identifier

		projectID, err := resolve.Project(ctx, p.client, identifier)
		if err != nil {
			add(target, "project", "exists", report.StatusFail, "Project not found: %s", identifier)
			continue
		}
		add(target, "project", "exists", report.StatusPass, "Project ID: %d", projectID)

		if coveringGroup, covered := resolve.CoveringGroup(ctx, p.client, projectID, configured); covered {
			add(target, "project", "coverage", report.StatusWarn,
				"Covered by group webhook (group ID: %d)", coveringGroup)
		}

		p.checkTokens(ctx, &results, target, reconcile.ProjectTarget(projectID), "Maintainer+")
		p.checkWebhook(ctx, &results, target, reconcile.ProjectTarget(projectID))
	}

	p.rep.CheckResults = results
	return results
}

// checkTokens probes token-list permission and token presence with a single
// listing call. When listing fails the token_state probe is skipped; the
// permission failure already explains it.
func (p *Provisioner) checkTokens(ctx context.Context, results *[]report.CheckResult, target string, t reconcile.Target, requiredRole string) {
	targetType := string(t.Kind)
	endpoint := fmt.Sprintf("/api/v4/%ss/%d/access_tokens", t.Kind, t.ID)

	var tokens []gitlab.AccessToken
	if err := p.client.Get(ctx, endpoint, nil, &tokens); err != nil {
		*results = append(*results, report.CheckResult{
			Target: target, TargetType: targetType, CheckName: "permissions",
			Status:  report.StatusFail,
			Message: fmt.Sprintf("Cannot list access tokens (%s role required)", requiredRole),
		})
		return
	}
	*results = append(*results, report.CheckResult{
		Target: target, TargetType: targetType, CheckName: "permissions",
		Status: report.StatusPass, Message: "Can list access tokens",
	})

	if existing := reconcile.FindSatisfyingToken(tokens); existing != nil {
		expires := existing.ExpiresAt
		if expires == "" {
			expires = "unknown"
		}
		*results = append(*results, report.CheckResult{
			Target: target, TargetType: targetType, CheckName: "token_state",
			Status:  report.StatusPass,
			Message: fmt.Sprintf("Token exists (ID: %d, expires: %s)", existing.ID, expires),
		})
	} else {
		*results = append(*results, report.CheckResult{
			Target: target, TargetType: targetType, CheckName: "token_state",
			Status: report.StatusWarn, Message: "No token found (will be created on run)",
		})
	}
}

func (p *Provisioner) checkWebhook(ctx context.Context, results *[]report.CheckResult, target string, t reconcile.Target) {
	targetType := string(t.Kind)
	endpoint := fmt.Sprintf("/api/v4/%ss/%d/hooks", t.Kind, t.ID)

	var hooks []gitlab.Hook
	if err := p.client.Get(ctx, endpoint, nil, &hooks); err != nil {
		message := fmt.Sprintf("Failed to check webhooks: %v", err)
		if t.Kind == reconcile.KindGroup && gitlab.IsNotFound(err) {
			message = "Group webhooks not available (Premium+ required)"
		}
		*results = append(*results, report.CheckResult{
			Target: target, TargetType: targetType, CheckName: "webhook_state",
			Status: report.StatusFail, Message: message,
		})
		return
	}

	for _, hook := range hooks {
		if hook.URL == p.cfg.Webhooks.MergeRequestURL {
			*results = append(*results, report.CheckResult{
				Target: target, TargetType: targetType, CheckName: "webhook_state",
				Status:  report.StatusPass,
				Message: fmt.Sprintf("Webhook exists (ID: %d)", hook.ID),
			})
			return
		}
	}
	*results = append(*results, report.CheckResult{
		Target: target, TargetType: targetType, CheckName: "webhook_state",
		Status: report.StatusWarn, Message: "No webhook found (will be created on run)",
	})
}

// HasFailures reports whether any check result failed.
func HasFailures(results []report.CheckResult) bool {
	for _, r := range results {
		if r.Status == report.StatusFail {
			return true
		}
	}
	return false
}
