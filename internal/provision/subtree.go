package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"glprovision/internal/gitlab"
)

// Subtree lists a root group and every descendant subgroup, breadth-first.
// Listing failures on individual subgroups are logged and skipped so a
// single unreadable branch does not hide the rest of the tree.
func (p *Provisioner) Subtree(ctx context.Context, rootID int64) ([]gitlab.Group, error) {
	var root gitlab.Group
	if err := p.client.Get(ctx, fmt.Sprintf("/api/v4/groups/%d", rootID), nil, &root); err != nil {
		return nil, fmt.Errorf("fetch group %d: %w", rootID, err)
	}

	out := []gitlab.Group{root}
	queue := []int64{rootID}
	seen := map[int64]bool{rootID: true}

	for len(queue) > 0 {
		groupID := queue[0]
		queue = queue[1:]

		endpoint := fmt.Sprintf("/api/v4/groups/%d/subgroups", groupID)
		subgroups, err := gitlab.Paginate[gitlab.Group](ctx, p.client, endpoint, nil)
		if err != nil {
			log.Warn().Err(err).Int64("group_id", groupID).Msg("could not list subgroups")
			continue
		}
		for _, sg := range subgroups {
			if seen[sg.ID] {
				continue
			}
			seen[sg.ID] = true
			out = append(out, sg)
			queue = append(queue, sg.ID)
		}
	}
	return out, nil
}
