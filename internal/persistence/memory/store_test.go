package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

var (
	day1 = time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
)

func TestApplyReconciliationFullCycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	// First run discovers two repositories.
	first := domain.Plan{
		Action:  "org/act",
		RunDate: day1,
		RunTime: day1.Add(8 * time.Hour),
		Inserts: []domain.UsageRecord{
			record("owner/a", "v1", 5),
			record("owner/b", "v1", 10),
		},
		History: &domain.HistoryPoint{ActionName: "org/act", Date: day1, TotalRepos: 2, NewRepos: 2, ActiveRepos: 2},
	}
	stats, err := store.ApplyReconciliation(ctx, first)
	require.NoError(t, err)
	require.Equal(t, domain.RunStats{TotalActive: 2, New: 2}, stats)

	active, err := store.ReadActiveKeys(ctx, "org/act")
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Second run: a survives with new metadata, b vanished.
	second := domain.Plan{
		Action:  "org/act",
		RunDate: day2,
		RunTime: day2.Add(8 * time.Hour),
		Updates: []domain.Occurrence{{
			RepoFullName: "owner/a",
			WorkflowPath: ".github/workflows/ci.yml",
			Version:      "v2",
			Stars:        7,
		}},
		Deactivations: []domain.Key{{RepoFullName: "owner/b", WorkflowPath: ".github/workflows/ci.yml"}},
		History:       &domain.HistoryPoint{ActionName: "org/act", Date: day2, TotalRepos: 2, RemovedRepos: 1, ActiveRepos: 1},
	}
	stats, err = store.ApplyReconciliation(ctx, second)
	require.NoError(t, err)
	require.Equal(t, domain.RunStats{TotalActive: 1, Updated: 1, Removed: 1}, stats)

	records := store.Records("org/act")
	require.Len(t, records, 2)

	a, b := records[0], records[1]
	require.Equal(t, "owner/a", a.RepoFullName)
	require.True(t, a.IsActive)
	require.Equal(t, "v2", a.Version)
	require.Equal(t, 7, a.Stars)
	require.Equal(t, day1, a.FirstSeen, "updates never touch FirstSeen")
	require.Equal(t, day2, a.LastSeen)

	require.Equal(t, "owner/b", b.RepoFullName)
	require.False(t, b.IsActive)
	require.Equal(t, day2, b.LastSeen, "deactivation stamps the run date")

	// Known keys still include the deactivated record, active keys do not.
	known, err := store.ReadKnownKeys(ctx, "org/act")
	require.NoError(t, err)
	require.Len(t, known, 2)
	active, err = store.ReadActiveKeys(ctx, "org/act")
	require.NoError(t, err)
	require.Len(t, active, 1)

	history := store.History("org/act")
	require.Len(t, history, 2)
	require.Equal(t, day1, history[0].Date)
	require.Equal(t, day2, history[1].Date)
}

func TestApplyReconciliationReplacesSameDayHistory(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, active := range []int{3, 5} {
		plan := domain.Plan{
			Action:  "org/act",
			RunDate: day1,
			RunTime: day1,
			History: &domain.HistoryPoint{ActionName: "org/act", Date: day1, ActiveRepos: active},
		}
		_, err := store.ApplyReconciliation(ctx, plan)
		require.NoError(t, err)
	}

	history := store.History("org/act")
	require.Len(t, history, 1, "rerunning on the same day rewrites the day's point")
	require.Equal(t, 5, history[0].ActiveRepos)
}

func TestApplyReconciliationSkipsUnknownUpdateKeys(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	plan := domain.Plan{
		Action:  "org/act",
		RunDate: day1,
		RunTime: day1,
		Updates: []domain.Occurrence{{
			RepoFullName: "owner/ghost",
			WorkflowPath: ".github/workflows/ci.yml",
			Version:      "v9",
		}},
	}
	_, err := store.ApplyReconciliation(ctx, plan)
	require.NoError(t, err)
	require.Empty(t, store.Records("org/act"))
}

func TestStoresAreIsolatedPerAction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	plan := domain.Plan{
		Action:  "org/act",
		RunDate: day1,
		RunTime: day1,
		Inserts: []domain.UsageRecord{record("owner/a", "v1", 5)},
	}
	_, err := store.ApplyReconciliation(ctx, plan)
	require.NoError(t, err)

	other, err := store.ReadKnownKeys(ctx, "org/other")
	require.NoError(t, err)
	require.Empty(t, other)
	require.Empty(t, store.Records("org/other"))
}

func TestSeedEstablishesPriorState(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	gone := record("owner/b", "v1", 10)
	gone.IsActive = false
	store.Seed([]domain.UsageRecord{record("owner/a", "v1", 5), gone})

	known, err := store.ReadKnownKeys(ctx, "org/act")
	require.NoError(t, err)
	require.Len(t, known, 2)

	active, err := store.ReadActiveKeys(ctx, "org/act")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Contains(t, active, domain.Key{RepoFullName: "owner/a", WorkflowPath: ".github/workflows/ci.yml"})
}

func record(repo, version string, stars int) domain.UsageRecord {
	owner, _, _ := strings.Cut(repo, "/")
	return domain.UsageRecord{
		ActionName:   "org/act",
		RepoFullName: repo,
		RepoOwner:    owner,
		WorkflowPath: ".github/workflows/ci.yml",
		WorkflowFile: "ci.yml",
		Version:      version,
		Stars:        stars,
		FirstSeen:    day1,
		LastSeen:     day1,
		IsActive:     true,
	}
}
