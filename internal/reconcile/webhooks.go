package reconcile

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"glprovision/internal/gitlab"
	"glprovision/internal/report"
)

const webhookDescription = "Qodo provides AI-powered code intelligence for merge requests and " +
	"context-aware code indexing. This webhook enables Qodo Merge for MR reviews " +
	"and Qodo Aware for repository analysis."

// FeatureUnavailableMessage explains a 404 on group hook listing: group
// webhooks only exist on higher GitLab plan tiers.
const FeatureUnavailableMessage = "Group webhooks require GitLab Premium+"

// Webhooks ensures each target carries a webhook matching the desired
// template: merge-request and note events on, push and pipeline events off,
// SSL verification required.
type Webhooks struct {
	Client *gitlab.Client
	URL    string
	Secret string
	Report *report.Report
}

type hookPayload struct {
	URL                   string `json:"url"`
	EnableSSLVerification bool   `json:"enable_ssl_verification"`
	Token                 string `json:"token"`
	PushEvents            bool   `json:"push_events"`
	MergeRequestsEvents   bool   `json:"merge_requests_events"`
	NoteEvents            bool   `json:"note_events"`
	PipelineEvents        bool   `json:"pipeline_events"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
}

func (w *Webhooks) desired(kind Kind) hookPayload {
	p := hookPayload{
		URL:                   w.URL,
		EnableSSLVerification: true,
		Token:                 w.Secret,
		MergeRequestsEvents:   true,
		NoteEvents:            true,
		Name:                  IntegrationName,
	}
	if kind == KindGroup {
		p.Description = webhookDescription
	}
	return p
}

// Ensure creates, updates or leaves the target's webhook alone, recording
// the outcome in the report. It returns false when the webhook could not be
// brought to the desired state.
func (w *Webhooks) Ensure(ctx context.Context, target Target) bool {
	operation := "ensure_" + string(target.Kind) + "_webhook"

	var hooks []gitlab.Hook
	if err := w.Client.Get(ctx, target.hooksEndpoint(), nil, &hooks); err != nil {
		w.recordListFailure(target, operation, err)
		return false
	}

	desired := w.desired(target.Kind)

	// Match on URL only; the first match wins if the API returns duplicates.
	var existing *gitlab.Hook
	for i := range hooks {
		if hooks[i].URL == desired.URL {
			existing = &hooks[i]
			break
		}
	}

	if existing == nil {
		log.Info().Stringer("target", target).Msg("creating webhook")
		var created gitlab.Hook
		err := w.Client.Post(ctx, target.hooksEndpoint(), desired, &created)
		if err != nil && !errors.Is(err, gitlab.ErrDryRun) {
			w.recordFailure(target, operation, err)
			return false
		}
		w.record(&w.Report.WebhooksCreated, target, created.ID)
		return true
	}

	if !hookMatches(existing, desired) {
		log.Info().Stringer("target", target).Int64("hook_id", existing.ID).Msg("updating webhook")
		err := w.Client.Put(ctx, target.hookEndpoint(existing.ID), desired, nil)
		if err != nil && !errors.Is(err, gitlab.ErrDryRun) {
			w.recordFailure(target, operation, err)
			return false
		}
		w.record(&w.Report.WebhooksUpdated, target, existing.ID)
		return true
	}

	log.Debug().Stringer("target", target).Int64("hook_id", existing.ID).Msg("webhook already configured")
	w.record(&w.Report.WebhooksUnchanged, target, existing.ID)
	return true
}

// hookMatches compares exactly the fields the desired template tracks.
func hookMatches(existing *gitlab.Hook, desired hookPayload) bool {
	return existing.URL == desired.URL &&
		existing.EnableSSLVerification == desired.EnableSSLVerification &&
		existing.PushEvents == desired.PushEvents &&
		existing.MergeRequestsEvents == desired.MergeRequestsEvents &&
		existing.NoteEvents == desired.NoteEvents &&
		existing.PipelineEvents == desired.PipelineEvents &&
		existing.Token == desired.Token
}

// recordListFailure distinguishes the expected group-scope 404 (webhooks not
// available at the current plan tier) from generic failures.
func (w *Webhooks) recordListFailure(target Target, operation string, err error) {
	if target.Kind == KindGroup && gitlab.IsNotFound(err) {
		log.Warn().Int64("group_id", target.ID).Msg("group webhooks not available on this plan tier")
		entry := target.errorEntry(operation, FeatureUnavailableMessage)
		entry.FeatureUnavailable = true
		w.Report.AddError(entry)
		return
	}
	w.recordFailure(target, operation, err)
}

func (w *Webhooks) recordFailure(target Target, operation string, err error) {
	log.Error().Err(err).Stringer("target", target).Msg("failed to ensure webhook")
	w.Report.AddError(target.errorEntry(operation, err.Error()))
}

func (w *Webhooks) record(list *[]report.HookEntry, target Target, hookID int64) {
	entry := report.HookEntry{HookID: hookID, URL: w.URL}
	switch target.Kind {
	case KindGroup:
		entry.GroupID = target.ID
	case KindProject:
		entry.ProjectID = target.ID
	}
	*list = append(*list, entry)
}
