// Package report computes and renders analytics over tracked action usage.
package report

import (
	"context"
	"time"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

// Querier is the read surface the analytics commands need. The postgres
// store implements it.
type Querier interface {
	Summarize(ctx context.Context, action string) (Summary, error)
	VersionBreakdown(ctx context.Context, action string) ([]VersionCount, error)
	LanguageBreakdown(ctx context.Context, action string, limit int) ([]LanguageCount, error)
	TopRepos(ctx context.Context, action string, limit int, includeInactive bool) ([]RepoRollup, error)
	Timeline(ctx context.Context, action string, since, until time.Time) ([]domain.HistoryPoint, error)
	RecentActivity(ctx context.Context, action string, since time.Time) (Activity, error)
	TrackedActions(ctx context.Context) ([]TrackedAction, error)
}

// Summary aggregates one action's tracked usage.
type Summary struct {
	ActionName      string `json:"action_name"`
	TotalRepos      int    `json:"total_repos"`
	ActiveRepos     int    `json:"active_repos"`
	InactiveRepos   int    `json:"inactive_repos"`
	TotalWorkflows  int    `json:"total_workflows"`
	ActiveWorkflows int    `json:"active_workflows"`
	TotalStars      int    `json:"total_stars"`
}

// RetentionRate is the share of ever-seen repositories still active, as a
// percentage.
func (s Summary) RetentionRate() float64 {
	if s.TotalRepos == 0 {
		return 0
	}
	return float64(s.ActiveRepos) / float64(s.TotalRepos) * 100
}

// VersionCount is one row of the pinned-version distribution across active
// repositories. Version is "unknown" where extraction never succeeded.
type VersionCount struct {
	Version   string `json:"version"`
	RepoCount int    `json:"repo_count"`
	Stars     int    `json:"stars"`
}

// LanguageCount is one row of the primary-language distribution across
// active repositories.
type LanguageCount struct {
	Language  string `json:"language"`
	RepoCount int    `json:"repo_count"`
	Stars     int    `json:"stars"`
}

// RepoRollup collapses a repository's workflow rows into one line for
// listings ordered by stars.
type RepoRollup struct {
	RepoFullName  string    `json:"repo_full_name"`
	Stars         int       `json:"stars"`
	Language      string    `json:"language"`
	Description   string    `json:"description"`
	IsActive      bool      `json:"is_active"`
	WorkflowCount int       `json:"workflow_count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// Adopter is a repository first seen within the activity window.
type Adopter struct {
	RepoFullName string    `json:"repo_full_name"`
	Stars        int       `json:"stars"`
	Language     string    `json:"language"`
	FirstSeen    time.Time `json:"first_seen"`
}

// Churn is a repository marked inactive within the activity window.
type Churn struct {
	RepoFullName string    `json:"repo_full_name"`
	Stars        int       `json:"stars"`
	Language     string    `json:"language"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// DaysUsed is the whole days between first and last sighting.
func (c Churn) DaysUsed() int {
	return int(c.LastSeen.Sub(c.FirstSeen).Hours() / 24)
}

// Activity pairs recent adopters with recent churn for one window.
type Activity struct {
	Adopters []Adopter `json:"adopters"`
	Churned  []Churn   `json:"churned"`
}

// TrackedAction is one action known to the store, with headline counts.
type TrackedAction struct {
	ActionName  string    `json:"action_name"`
	TotalRepos  int       `json:"total_repos"`
	ActiveRepos int       `json:"active_repos"`
	LastUpdated time.Time `json:"last_updated"`
}
