package domain

import (
	"sort"
	"time"
)

// PriorState is the persisted state for one action as read at the start of a
// run. Known holds every key ever recorded, active or not; Active holds the
// subset currently flagged active. Both sets must come from the same read so
// the plan is computed against a single consistent view.
type PriorState struct {
	Known  map[Key]struct{}
	Active map[Key]struct{}
}

// Plan is the complete set of writes one reconciliation run must apply.
// Inserts are brand new records, Updates refresh existing records (active or
// previously deactivated) with the newly observed metadata, and
// Deactivations flip records whose key vanished from the snapshot. The
// whole plan commits atomically or not at all.
type Plan struct {
	Action        string
	RunDate       time.Time
	RunTime       time.Time
	Inserts       []UsageRecord
	Updates       []Occurrence
	Deactivations []Key
	History       *HistoryPoint
}

// Stats derives the run statistics the plan will produce once applied.
func (p Plan) Stats() RunStats {
	return RunStats{
		TotalActive: len(p.Inserts) + len(p.Updates),
		New:         len(p.Inserts),
		Updated:     len(p.Updates),
		Removed:     len(p.Deactivations),
	}
}

// Empty reports whether the plan carries no writes at all.
func (p Plan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0 && len(p.Deactivations) == 0 && p.History == nil
}

// BuildPlan merges a collected snapshot against the prior state and computes
// the exact state transition for the run. It is a pure function: no clock,
// no storage, no network.
//
// Every key in the snapshot becomes an insert (never recorded before, with
// FirstSeen = LastSeen = run date) or an update (recorded before, metadata
// overwritten wholesale, FirstSeen untouched). Every key active before the
// run but absent from a complete snapshot is deactivated with LastSeen set
// to the run date. An incomplete snapshot yields no deactivations and no
// history point, because a key missing from an unfinished census is not
// evidence of removal.
func BuildPlan(action string, snap Snapshot, prior PriorState, now time.Time) Plan {
	now = now.UTC()
	today := dateOf(now)

	plan := Plan{Action: action, RunDate: today, RunTime: now}

	for key, occ := range snap.Occurrences {
		if _, known := prior.Known[key]; known {
			plan.Updates = append(plan.Updates, occ)
			continue
		}
		plan.Inserts = append(plan.Inserts, UsageRecord{
			ActionName:    action,
			RepoFullName:  occ.RepoFullName,
			RepoOwner:     occ.RepoOwner,
			RepoName:      occ.RepoName,
			WorkflowPath:  occ.WorkflowPath,
			WorkflowFile:  occ.WorkflowFile,
			Version:       occ.Version,
			FirstSeen:     today,
			LastSeen:      today,
			IsActive:      true,
			Stars:         occ.Stars,
			IsFork:        occ.IsFork,
			IsPrivate:     occ.IsPrivate,
			DefaultBranch: occ.DefaultBranch,
			Language:      occ.Language,
			Description:   occ.Description,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if snap.Complete {
		for key := range prior.Active {
			if _, found := snap.Occurrences[key]; !found {
				plan.Deactivations = append(plan.Deactivations, key)
			}
		}
		point := BuildHistoryPoint(action, snap, prior, now)
		plan.History = &point
	}

	sortRecords(plan.Inserts)
	sortOccurrences(plan.Updates)
	sortKeys(plan.Deactivations)
	return plan
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortRecords(records []UsageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return lessKey(records[i].Key(), records[j].Key())
	})
}

func sortOccurrences(occs []Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		return lessKey(occs[i].Key(), occs[j].Key())
	})
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return lessKey(keys[i], keys[j])
	})
}

func lessKey(a, b Key) bool {
	if a.RepoFullName != b.RepoFullName {
		return a.RepoFullName < b.RepoFullName
	}
	return a.WorkflowPath < b.WorkflowPath
}
