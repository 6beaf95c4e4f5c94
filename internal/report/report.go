// Package report accumulates everything a run did, skipped, or failed.
//
// The report is the only mutable state shared across a run. It is appended
// to sequentially by the orchestrator and the reconcilers, then rendered or
// serialized once at the end. Newly created secrets live here and in the
// console disclosure only, never in log output.
package report

import (
	"encoding/json"
	"fmt"
	"os"
)

// TokenEntry records a token that was created or verified on a target.
// TokenValue is only set for freshly created tokens.
type TokenEntry struct {
	GroupID    int64  `json:"group_id,omitempty"`
	ProjectID  int64  `json:"project_id,omitempty"`
	TokenID    int64  `json:"token_id,omitempty"`
	TokenName  string `json:"token_name,omitempty"`
	TokenValue string `json:"token_value,omitempty"`
}

// HookEntry records a webhook that was created, updated, or left unchanged.
type HookEntry struct {
	GroupID   int64  `json:"group_id,omitempty"`
	ProjectID int64  `json:"project_id,omitempty"`
	HookID    int64  `json:"hook_id,omitempty"`
	URL       string `json:"url"`
}

// ErrorEntry records a non-fatal failure with enough context to remediate
// without re-running. ManualActionRequired marks permission failures the
// tool must not retry with escalated privilege.
type ErrorEntry struct {
	GroupID              int64  `json:"group_id,omitempty"`
	ProjectID            int64  `json:"project_id,omitempty"`
	Target               string `json:"target,omitempty"`
	Operation            string `json:"operation"`
	Error                string `json:"error"`
	ManualActionRequired bool   `json:"manual_action_required,omitempty"`
	FeatureUnavailable   bool   `json:"feature_unavailable,omitempty"`
}

// GroupSummary holds the values an operator needs to finish wiring the
// integration for one root group.
type GroupSummary struct {
	GroupID                    int64  `json:"group_id"`
	GroupPath                  string `json:"group_path"`
	GroupAccessToken           string `json:"group_access_token,omitempty"`
	PersonalAccessTokenUsed    bool   `json:"personal_access_token_used"`
	WebhookSecret              string `json:"webhook_secret"`
	WebhookSecretAutoGenerated bool   `json:"webhook_secret_auto_generated"`
	WebhookURL                 string `json:"webhook_url"`
}

// ProjectSummary is the per-project counterpart of GroupSummary.
type ProjectSummary struct {
	ProjectID             int64  `json:"project_id"`
	ProjectPath           string `json:"project_path"`
	ProjectAccessToken    string `json:"project_access_token,omitempty"`
	WebhookSecret         string `json:"webhook_secret"`
	WebhookURL            string `json:"webhook_url"`
	CoveredByGroupWebhook bool   `json:"covered_by_group_webhook"`
}

// CheckStatus is the outcome of a single check-mode probe.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// CheckResult is one validation probe result in check mode.
type CheckResult struct {
	Target     string      `json:"target"`      // e.g. "group:engineering"
	TargetType string      `json:"target_type"` // "auth", "group" or "project"
	CheckName  string      `json:"check_name"`  // e.g. "exists", "webhook_state"
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
}

// Report is the run accumulator.
type Report struct {
	TokensCreated     []TokenEntry `json:"tokens_created"`
	TokensVerified    []TokenEntry `json:"tokens_verified"`
	WebhooksCreated   []HookEntry  `json:"webhooks_created"`
	WebhooksUpdated   []HookEntry  `json:"webhooks_updated"`
	WebhooksUnchanged []HookEntry  `json:"webhooks_unchanged"`
	Errors            []ErrorEntry `json:"errors"`

	GroupsProcessed   int `json:"groups_processed"`
	GroupsSkipped     int `json:"groups_skipped"`
	ProjectsProcessed int `json:"projects_processed"`
	ProjectsSkipped   int `json:"projects_skipped"`

	ConfigurationSummary        []GroupSummary   `json:"configuration_summary"`
	ProjectConfigurationSummary []ProjectSummary `json:"project_configuration_summary"`
	CheckResults                []CheckResult    `json:"check_results"`
}

// New returns an empty report with every list non-nil so the serialized
// form always carries the full shape.
func New() *Report {
	return &Report{
		TokensCreated:               []TokenEntry{},
		TokensVerified:              []TokenEntry{},
		WebhooksCreated:             []HookEntry{},
		WebhooksUpdated:             []HookEntry{},
		WebhooksUnchanged:           []HookEntry{},
		Errors:                      []ErrorEntry{},
		ConfigurationSummary:        []GroupSummary{},
		ProjectConfigurationSummary: []ProjectSummary{},
		CheckResults:                []CheckResult{},
	}
}

// AddError appends a non-fatal failure.
func (r *Report) AddError(e ErrorEntry) {
	r.Errors = append(r.Errors, e)
}

// Save writes the report as indented JSON to path.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
