package domain

import "time"

// Key is the stable identity of one usage: a repository may reference the
// same action from several workflow files, and each file is tracked on its
// own.
type Key struct {
	RepoFullName string
	WorkflowPath string
}

// String renders the key in "repo:path" form, the format used for
// deduplication and log lines.
func (k Key) String() string {
	return k.RepoFullName + ":" + k.WorkflowPath
}

// Occurrence is one observed binding of an action to a workflow file,
// together with the repository metadata captured during the same collection
// pass. Metadata fields are best-effort: an empty Version means the pinned
// ref could not be extracted, and repository details may be zero values when
// the metadata fetch failed.
type Occurrence struct {
	RepoFullName  string
	RepoOwner     string
	RepoName      string
	WorkflowPath  string
	WorkflowFile  string
	Version       string
	Stars         int
	IsFork        bool
	IsPrivate     bool
	DefaultBranch string
	Language      string
	Description   string
}

// Key returns the identity of the occurrence.
func (o Occurrence) Key() Key {
	return Key{RepoFullName: o.RepoFullName, WorkflowPath: o.WorkflowPath}
}

// Snapshot is the full set of occurrences observed for one action in one
// collection pass. Complete reports whether the census covered every search
// query and page; an incomplete snapshot may still be applied for inserts
// and refreshes, but absence of a key proves nothing, so it must never
// trigger deactivations.
type Snapshot struct {
	Occurrences map[Key]Occurrence
	Complete    bool
}

// Size returns the number of distinct usages in the snapshot.
func (s Snapshot) Size() int {
	return len(s.Occurrences)
}

// UsageRecord is the persisted state of one usage across reconciliation
// runs. FirstSeen never changes after the record is created. LastSeen is the
// date of the most recent run that observed the key, or, for inactive
// records, the date the absence was first recorded. A record is never
// deleted, only flipped inactive.
type UsageRecord struct {
	ActionName    string
	RepoFullName  string
	RepoOwner     string
	RepoName      string
	WorkflowPath  string
	WorkflowFile  string
	Version       string
	FirstSeen     time.Time
	LastSeen      time.Time
	IsActive      bool
	Stars         int
	IsFork        bool
	IsPrivate     bool
	DefaultBranch string
	Language      string
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the identity of the record.
func (r UsageRecord) Key() Key {
	return Key{RepoFullName: r.RepoFullName, WorkflowPath: r.WorkflowPath}
}

// HistoryPoint summarizes one reconciliation run for the time series. There
// is at most one authoritative point per action and date; a rerun on the
// same date replaces the earlier point.
type HistoryPoint struct {
	ActionName   string
	Date         time.Time
	TotalRepos   int
	NewRepos     int
	RemovedRepos int
	ActiveRepos  int
	Timestamp    time.Time
}

// RunStats reports what one reconciliation run changed.
type RunStats struct {
	TotalActive int
	New         int
	Updated     int
	Removed     int
}
