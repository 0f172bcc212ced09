package domain

import "time"

// BuildHistoryPoint computes the time-series entry for one run. New and
// removed counts come from set difference against the prior state, never
// from subtracting totals, so duplicate or corrupted prior data can only
// shrink the deltas, not double-count them. A key that existed inactive and
// reappears counts as neither new nor removed.
func BuildHistoryPoint(action string, snap Snapshot, prior PriorState, now time.Time) HistoryPoint {
	newCount := 0
	for key := range snap.Occurrences {
		if _, known := prior.Known[key]; !known {
			newCount++
		}
	}

	removedCount := 0
	for key := range prior.Active {
		if _, found := snap.Occurrences[key]; !found {
			removedCount++
		}
	}

	now = now.UTC()
	return HistoryPoint{
		ActionName:   action,
		Date:         dateOf(now),
		TotalRepos:   snap.Size(),
		NewRepos:     newCount,
		RemovedRepos: removedCount,
		ActiveRepos:  snap.Size(),
		Timestamp:    now,
	}
}
