// Package reconcile brings access tokens and webhooks on a single GitLab
// group or project in line with the desired integration state, issuing the
// minimal set of create and update calls.
package reconcile

import (
	"fmt"

	"glprovision/internal/report"
)

// Kind discriminates the two target scopes the API exposes.
type Kind string

const (
	KindGroup   Kind = "group"
	KindProject Kind = "project"
)

// Target is one group or project to reconcile.
type Target struct {
	Kind Kind
	ID   int64
}

func GroupTarget(id int64) Target   { return Target{Kind: KindGroup, ID: id} }
func ProjectTarget(id int64) Target { return Target{Kind: KindProject, ID: id} }

func (t Target) String() string {
	return fmt.Sprintf("%s %d", t.Kind, t.ID)
}

func (t Target) tokensEndpoint() string {
	return fmt.Sprintf("/api/v4/%ss/%d/access_tokens", t.Kind, t.ID)
}

func (t Target) hooksEndpoint() string {
	return fmt.Sprintf("/api/v4/%ss/%d/hooks", t.Kind, t.ID)
}

func (t Target) hookEndpoint(hookID int64) string {
	return fmt.Sprintf("/api/v4/%ss/%d/hooks/%d", t.Kind, t.ID, hookID)
}

// errorEntry builds a report error attributed to this target.
func (t Target) errorEntry(operation, message string) report.ErrorEntry {
	e := report.ErrorEntry{Operation: operation, Error: message}
	switch t.Kind {
	case KindGroup:
		e.GroupID = t.ID
	case KindProject:
		e.ProjectID = t.ID
	}
	return e
}
