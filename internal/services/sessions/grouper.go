package sessions

import (
	"sort"
	"time"

	"github.com/ternarybob/curo/internal/models"
)

// GroupBatches clusters batches into time-proximity groups with a single
// left-to-right scan over the batches sorted by start time.
//
// The window is measured from the FIRST batch of the current group, not the
// previous batch: a batch arriving close on the heels of its predecessor
// still opens a new group once the group's first batch is more than a window
// behind it. Do not "fix" this into pairwise-delta semantics; groups are
// anchored to their opening batch on purpose.
func GroupBatches(batches []*models.Batch, window time.Duration) []models.SessionGroup {
	if len(batches) == 0 {
		return nil
	}

	sorted := make([]*models.Batch, len(batches))
	copy(sorted, batches)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	groups := []models.SessionGroup{}
	current := models.SessionGroup{
		StartedAt: sorted[0].CreatedAt,
		Batches:   []*models.Batch{sorted[0]},
	}

	for _, batch := range sorted[1:] {
		if batch.CreatedAt.Sub(current.StartedAt) <= window {
			current.Batches = append(current.Batches, batch)
			continue
		}
		groups = append(groups, current)
		current = models.SessionGroup{
			StartedAt: batch.CreatedAt,
			Batches:   []*models.Batch{batch},
		}
	}

	return append(groups, current)
}
