package utils

import "github.com/nasda-team/nasda/models"

// UniqueOwnerIDs collects the distinct user ids behind owned references, in first-seen order.
// Orphaned references are skipped.
func UniqueOwnerIDs(owners []models.Owner) []uint {
	seen := make(map[uint]struct{}, len(owners))
	ids := make([]uint, 0, len(owners))
	for _, o := range owners {
		id, ok := o.ID()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
