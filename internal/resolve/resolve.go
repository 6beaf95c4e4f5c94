// Package resolve maps human-supplied group and project identifiers to
// numeric GitLab IDs and detects group webhook coverage for projects.
package resolve

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"glprovision/internal/gitlab"
)

// NotFoundError means an identifier could not be resolved to a live
// group or project.
type NotFoundError struct {
	Kind       string // "group" or "project"
	Identifier string
	Err        error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Identifier)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Group resolves a group path or numeric ID to a group ID. Numeric
// identifiers are trusted as-is without a lookup call; paths go through the
// group search endpoint and must match full_path or path exactly.
func Group(ctx context.Context, c *gitlab.Client, identifier string) (int64, error) {
	if id, ok := numericID(identifier); ok {
		return id, nil
	}

	params := url.Values{"search": {identifier}}
	var groups []gitlab.Group
	if err := c.Get(ctx, "/api/v4/groups", params, &groups); err != nil {
		return 0, &NotFoundError{Kind: "group", Identifier: identifier, Err: err}
	}
	for _, g := range groups {
		if g.FullPath == identifier || g.Path == identifier {
			return g.ID, nil
		}
	}
	return 0, &NotFoundError{Kind: "group", Identifier: identifier}
}

// Project resolves a project path or numeric ID to a project ID. Paths are
// URL-encoded and fetched directly.
func Project(ctx context.Context, c *gitlab.Client, identifier string) (int64, error) {
	if id, ok := numericID(identifier); ok {
		return id, nil
	}

	var project gitlab.Project
	endpoint := "/api/v4/projects/" + url.PathEscape(identifier)
	if err := c.Get(ctx, endpoint, nil, &project); err != nil {
		return 0, &NotFoundError{Kind: "project", Identifier: identifier, Err: err}
	}
	return project.ID, nil
}

// CoveringGroup reports whether the project's namespace, or any ancestor
// group of it, is among the configured group IDs. Lookup failures degrade to
// "not covered" so a coverage probe can never block provisioning the project
// itself.
func CoveringGroup(ctx context.Context, c *gitlab.Client, projectID int64, configured map[int64]bool) (int64, bool) {
	var project gitlab.Project
	endpoint := fmt.Sprintf("/api/v4/projects/%d", projectID)
	if err := c.Get(ctx, endpoint, nil, &project); err != nil {
		log.Warn().Err(err).Int64("project_id", projectID).Msg("coverage lookup failed")
		return 0, false
	}

	if project.Namespace.ID != 0 && configured[project.Namespace.ID] {
		return project.Namespace.ID, true
	}

	// Walk ancestor prefixes of the namespace path, most specific first.
	parts := strings.Split(project.Namespace.FullPath, "/")
	for i := len(parts) - 1; i > 0; i-- {
		parentPath := strings.Join(parts[:i], "/")
		var group gitlab.Group
		endpoint := "/api/v4/groups/" + url.PathEscape(parentPath)
		if err := c.Get(ctx, endpoint, nil, &group); err != nil {
			continue
		}
		if configured[group.ID] {
			return group.ID, true
		}
	}
	return 0, false
}

// numericID parses identifiers that are purely digits.
func numericID(identifier string) (int64, bool) {
	if identifier == "" {
		return 0, false
	}
	for _, r := range identifier {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
