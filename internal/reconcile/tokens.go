package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"glprovision/internal/config"
	"glprovision/internal/gitlab"
	"glprovision/internal/report"
)

// Fixed identity of the integration's access tokens and webhooks. The token
// name doubles as the match key when verifying existing tokens.
const (
	IntegrationName = "Qodo AI Integration"

	groupTokenDescription = "Qodo provides AI-powered code intelligence for merge requests and " +
		"context-aware code indexing. This token enables Qodo Merge for MR reviews " +
		"and Qodo Aware for repository analysis."
	projectTokenDescription = "Qodo provides AI-powered code intelligence for merge requests and " +
		"context-aware code indexing."

	// accessLevelMaintainer is GitLab's numeric Maintainer role.
	accessLevelMaintainer = 40
)

var tokenScopes = []string{"api", "read_repository"}

// Tokens ensures each target carries exactly one live integration token.
// Existing valid tokens are never rotated.
type Tokens struct {
	Client       *gitlab.Client
	Mode         config.AuthMode
	LifetimeDays int
	Report       *report.Report

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

type tokenPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
	AccessLevel int      `json:"access_level"`
	ExpiresAt   string   `json:"expires_at"`
}

// Ensure verifies or creates the integration token on target and returns the
// one-time secret when a token was freshly created. In bot_user_pat mode no
// per-target token exists by design and Ensure returns immediately without
// an API call. Failures are folded into the report, never returned.
func (t *Tokens) Ensure(ctx context.Context, target Target) string {
	if t.Mode == config.AuthBotUserPAT {
		log.Debug().Stringer("target", target).Msg("using bot PAT, skipping token")
		return ""
	}

	operation := "ensure_" + string(target.Kind) + "_token"

	var existing []gitlab.AccessToken
	if err := t.Client.Get(ctx, target.tokensEndpoint(), nil, &existing); err != nil {
		t.recordFailure(target, operation, err)
		return ""
	}

	if found := FindSatisfyingToken(existing); found != nil {
		log.Info().Stringer("target", target).Int64("token_id", found.ID).Msg("token already exists")
		t.Report.TokensVerified = append(t.Report.TokensVerified, t.entry(target, found))
		return ""
	}

	log.Info().Stringer("target", target).Int("expires_in_days", t.LifetimeDays).Msg("creating token")
	payload := tokenPayload{
		Name:        IntegrationName,
		Description: tokenDescription(target.Kind),
		Scopes:      tokenScopes,
		AccessLevel: accessLevelMaintainer,
		ExpiresAt:   t.now().AddDate(0, 0, t.LifetimeDays).Format("2006-01-02"),
	}

	var created gitlab.AccessToken
	err := t.Client.Post(ctx, target.tokensEndpoint(), payload, &created)
	if errors.Is(err, gitlab.ErrDryRun) {
		return ""
	}
	if err != nil {
		t.recordFailure(target, operation, err)
		return ""
	}

	// The secret is disclosed through the report and final summary only.
	log.Warn().Stringer("target", target).Int64("token_id", created.ID).
		Msg("token created, value shown once in the configuration summary")

	entry := t.entry(target, &created)
	entry.TokenValue = created.Token
	t.Report.TokensCreated = append(t.Report.TokensCreated, entry)
	return created.Token
}

// FindSatisfyingToken returns the first token matching the integration name
// that has not been revoked. expires_at is deliberately not compared against
// the clock: an expired-but-unrevoked token still satisfies the requirement.
func FindSatisfyingToken(tokens []gitlab.AccessToken) *gitlab.AccessToken {
	for i := range tokens {
		if tokens[i].Name == IntegrationName && !tokens[i].Revoked {
			return &tokens[i]
		}
	}
	return nil
}

func (t *Tokens) recordFailure(target Target, operation string, err error) {
	if gitlab.IsPermissionDenied(err) {
		role := "Owner"
		if target.Kind == KindProject {
			role = "Maintainer+"
		}
		log.Error().Stringer("target", target).
			Msgf("insufficient permissions to manage access tokens, %s role required", role)
		entry := target.errorEntry(operation,
			"Insufficient permissions - "+role+" role required to create access tokens")
		entry.ManualActionRequired = true
		t.Report.AddError(entry)
		return
	}
	log.Error().Err(err).Stringer("target", target).Msg("failed to ensure token")
	t.Report.AddError(target.errorEntry(operation, err.Error()))
}

func (t *Tokens) entry(target Target, token *gitlab.AccessToken) report.TokenEntry {
	entry := report.TokenEntry{TokenID: token.ID, TokenName: token.Name}
	switch target.Kind {
	case KindGroup:
		entry.GroupID = target.ID
	case KindProject:
		entry.ProjectID = target.ID
	}
	return entry
}

func (t *Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func tokenDescription(kind Kind) string {
	if kind == KindProject {
		return projectTokenDescription
	}
	return groupTokenDescription
}
