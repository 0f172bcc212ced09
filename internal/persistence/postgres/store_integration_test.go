//go:build integration

package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
	"github.com/rossturk/github-traffic-grabber/internal/traffic"
)

func TestStoreReconcileLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	store := NewStore(pool)
	require.NoError(t, store.Init(ctx))

	day1 := time.Date(2024, time.June, 9, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	day3 := day2.Add(24 * time.Hour)

	stats := reconcile(t, store, "org/act", day1, true,
		occurrence("owner/app", "ci.yml", "v1", 42, "Go"),
		occurrence("owner/app", "release.yml", "v1", 42, "Go"),
		occurrence("owner/lib", "test.yml", "", 7, "Rust"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 3, New: 3}, stats)

	// Second run: owner/app upgraded and dropped one workflow, owner/lib
	// vanished entirely.
	stats = reconcile(t, store, "org/act", day2, true,
		occurrence("owner/app", "ci.yml", "v2", 50, "Go"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 1, Updated: 1, Removed: 2}, stats)

	active, err := store.Records(ctx, "org/act", StateActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "owner/app", active[0].RepoFullName)
	require.Equal(t, "v2", active[0].Version)
	require.Equal(t, 50, active[0].Stars)
	require.Equal(t, date(2024, time.June, 9), active[0].FirstSeen)
	require.Equal(t, date(2024, time.June, 10), active[0].LastSeen)

	inactive, err := store.Records(ctx, "org/act", StateInactive)
	require.NoError(t, err)
	require.Len(t, inactive, 2)
	for _, rec := range inactive {
		require.False(t, rec.IsActive)
		require.Equal(t, date(2024, time.June, 9), rec.FirstSeen)
		require.Equal(t, date(2024, time.June, 10), rec.LastSeen)
	}

	all, err := store.Records(ctx, "org/act", StateAll)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].IsActive, "active rows sort first")

	// Third run: owner/lib returns. Reactivation is an update, so its
	// original first-seen date survives.
	stats = reconcile(t, store, "org/act", day3, true,
		occurrence("owner/app", "ci.yml", "v2", 55, "Go"),
		occurrence("owner/lib", "test.yml", "v2", 9, "Rust"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 2, Updated: 2}, stats)

	active, err = store.Records(ctx, "org/act", StateActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	lib := recordFor(t, active, "owner/lib")
	require.Equal(t, date(2024, time.June, 9), lib.FirstSeen)
	require.Equal(t, date(2024, time.June, 11), lib.LastSeen)
	require.Equal(t, "v2", lib.Version)

	// Rerun an hour later on the same date: the history point is replaced,
	// not duplicated.
	stats = reconcile(t, store, "org/act", day3.Add(time.Hour), true,
		occurrence("owner/app", "ci.yml", "v2", 55, "Go"),
		occurrence("owner/lib", "test.yml", "v2", 9, "Rust"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 2, Updated: 2}, stats)

	points, err := store.Timeline(ctx, "org/act", day1.AddDate(0, 0, -1), day3.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.Equal(t, date(2024, time.June, 9), points[0].Date)
	require.Equal(t, 3, points[0].NewRepos)
	require.Equal(t, 2, points[1].RemovedRepos)
	require.Equal(t, 2, points[2].TotalRepos)
	require.Equal(t, 0, points[2].NewRepos)

	// A partial census proves nothing about absent keys: no deactivation,
	// no history point, but found keys are still refreshed.
	day4 := day3.Add(24 * time.Hour)
	stats = reconcile(t, store, "org/act", day4, false,
		occurrence("owner/app", "ci.yml", "v2", 60, "Go"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 1, Updated: 1}, stats)

	active, err = store.Records(ctx, "org/act", StateActive)
	require.NoError(t, err)
	require.Len(t, active, 2, "partial snapshot must not deactivate anything")
	require.Equal(t, 60, recordFor(t, active, "owner/app").Stars)

	points, err = store.Timeline(ctx, "org/act", day1.AddDate(0, 0, -1), day4.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, points, 3, "partial snapshot must not write history")
}

func TestStoreAnalyticsQueries(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	store := NewStore(pool)
	require.NoError(t, store.Init(ctx))

	day1 := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, time.June, 8, 9, 0, 0, 0, time.UTC)

	reconcile(t, store, "org/cache", day1, true,
		occurrence("alpha/web", "ci.yml", "v4", 120, "Go"),
		occurrence("alpha/web", "nightly.yml", "v4", 120, "Go"),
		occurrence("beta/api", "test.yml", "v3", 80, "TypeScript"),
		occurrence("delta/svc", "ci.yml", "v4", 30, "Go"),
		occurrence("epsilon/legacy", "deploy.yml", "", 2, ""),
		occurrence("gamma/tool", "build.yml", "v2", 5, "Go"),
	)

	// A week later gamma/tool is gone, zeta/new adopted, alpha/web gained
	// stars.
	stats := reconcile(t, store, "org/cache", day2, true,
		occurrence("alpha/web", "ci.yml", "v4", 125, "Go"),
		occurrence("alpha/web", "nightly.yml", "v4", 125, "Go"),
		occurrence("beta/api", "test.yml", "v3", 80, "TypeScript"),
		occurrence("delta/svc", "ci.yml", "v4", 30, "Go"),
		occurrence("epsilon/legacy", "deploy.yml", "", 2, ""),
		occurrence("zeta/new", "ci.yml", "v4", 10, "Go"),
	)
	require.Equal(t, domain.RunStats{TotalActive: 6, New: 1, Updated: 5, Removed: 1}, stats)

	reconcile(t, store, "org/checkout", day2, true,
		occurrence("alpha/web", "ci.yml", "v4", 125, "Go"),
	)

	summary, err := store.Summarize(ctx, "org/cache")
	require.NoError(t, err)
	require.Equal(t, "org/cache", summary.ActionName)
	require.Equal(t, 6, summary.TotalRepos)
	require.Equal(t, 5, summary.ActiveRepos)
	require.Equal(t, 1, summary.InactiveRepos)
	require.Equal(t, 7, summary.TotalWorkflows)
	require.Equal(t, 6, summary.ActiveWorkflows)
	require.Equal(t, 372, summary.TotalStars)

	versions, err := store.VersionBreakdown(ctx, "org/cache")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, "v4", versions[0].Version)
	require.Equal(t, 3, versions[0].RepoCount)
	require.Equal(t, 290, versions[0].Stars)
	byVersion := map[string]int{}
	for _, v := range versions {
		byVersion[v.Version] = v.RepoCount
	}
	require.Equal(t, 1, byVersion["v3"])
	require.Equal(t, 1, byVersion["unknown"], "empty versions group under unknown")

	languages, err := store.LanguageBreakdown(ctx, "org/cache", 10)
	require.NoError(t, err)
	require.Len(t, languages, 3)
	require.Equal(t, "Go", languages[0].Language)
	require.Equal(t, 3, languages[0].RepoCount)
	byLanguage := map[string]int{}
	for _, lang := range languages {
		byLanguage[lang.Language] = lang.RepoCount
	}
	require.Equal(t, 1, byLanguage["TypeScript"])
	require.Equal(t, 1, byLanguage["Unknown"])

	top, err := store.TopRepos(ctx, "org/cache", 3, false)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, "alpha/web", top[0].RepoFullName)
	require.Equal(t, 125, top[0].Stars)
	require.Equal(t, 2, top[0].WorkflowCount)
	require.Equal(t, date(2024, time.June, 1), top[0].FirstSeen)
	require.Equal(t, date(2024, time.June, 8), top[0].LastSeen)
	require.Equal(t, "beta/api", top[1].RepoFullName)
	require.Equal(t, "delta/svc", top[2].RepoFullName)

	withInactive, err := store.TopRepos(ctx, "org/cache", 10, true)
	require.NoError(t, err)
	require.Len(t, withInactive, 6)
	found := false
	for _, repo := range withInactive {
		if repo.RepoFullName == "gamma/tool" {
			found = true
			require.False(t, repo.IsActive)
		}
	}
	require.True(t, found, "inactive listing should include gamma/tool")

	activity, err := store.RecentActivity(ctx, "org/cache", date(2024, time.June, 5))
	require.NoError(t, err)
	require.Len(t, activity.Adopters, 1)
	require.Equal(t, "zeta/new", activity.Adopters[0].RepoFullName)
	require.Equal(t, date(2024, time.June, 8), activity.Adopters[0].FirstSeen)
	require.Len(t, activity.Churned, 1)
	require.Equal(t, "gamma/tool", activity.Churned[0].RepoFullName)
	require.Equal(t, date(2024, time.June, 8), activity.Churned[0].LastSeen)

	actions, err := store.TrackedActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "org/cache", actions[0].ActionName)
	require.Equal(t, 6, actions[0].TotalRepos)
	require.Equal(t, 5, actions[0].ActiveRepos)
	require.Equal(t, "org/checkout", actions[1].ActionName)
	require.Equal(t, 1, actions[1].TotalRepos)
}

func TestTrafficStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	store := NewTrafficStore(pool)
	require.NoError(t, store.Init(ctx))

	const repo = "rossturk/ursa"

	first := traffic.Sample{
		Repo:      repo,
		FetchedAt: time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC),
		Daily: []traffic.DailyView{
			dailyView(repo, date(2024, time.June, 8), 40, 12),
			dailyView(repo, date(2024, time.June, 9), 60, 20),
		},
		Totals: traffic.Totals{Repo: repo, Count: 100, Uniques: 32},
		Paths: []traffic.PathCount{
			{Path: "/", Title: "Home", Count: 60, Uniques: 20},
			{Path: "/docs", Title: "Docs", Count: 25, Uniques: 9},
		},
		Referrers: []traffic.ReferrerCount{
			{Referrer: "news.ycombinator.com", Count: 30, Uniques: 18},
			{Referrer: "reddit.com", Count: 14, Uniques: 7},
		},
	}
	require.NoError(t, store.SaveSample(ctx, first))

	recent, err := store.RecentViews(ctx, repo, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, date(2024, time.June, 9), recent[0].Date)
	require.Equal(t, 60, recent[0].Count)

	// A later fetch the same day revises June 9, adds June 10, and replaces
	// the day's referrers. Its paths fetch failed, so the morning's paths
	// must survive.
	second := traffic.Sample{
		Repo:      repo,
		FetchedAt: time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC),
		Daily: []traffic.DailyView{
			dailyView(repo, date(2024, time.June, 9), 65, 21),
			dailyView(repo, date(2024, time.June, 10), 5, 2),
		},
		Totals: traffic.Totals{Repo: repo, Count: 110, Uniques: 35},
		Referrers: []traffic.ReferrerCount{
			{Referrer: "reddit.com", Count: 20, Uniques: 9},
		},
	}
	require.NoError(t, store.SaveSample(ctx, second))

	views, err := store.DailyViews(ctx, repo, date(2024, time.June, 8), date(2024, time.June, 10))
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, 40, views[0].Count)
	require.Equal(t, 65, views[1].Count, "same-day save revises the day, not duplicates it")
	require.Equal(t, 21, views[1].Uniques)
	require.Equal(t, 5, views[2].Count)

	paths, err := store.PopularPaths(ctx, repo, date(2024, time.June, 10), date(2024, time.June, 10), 5)
	require.NoError(t, err)
	require.Len(t, paths, 2, "sample without paths must not wipe the day")
	require.Equal(t, "/", paths[0].Path)
	require.Equal(t, 60, paths[0].Count)

	referrers, err := store.TopReferrers(ctx, repo, "", date(2024, time.June, 10), date(2024, time.June, 10), 10)
	require.NoError(t, err)
	require.Len(t, referrers, 1, "same-day referrers are replaced, not appended")
	require.Equal(t, "reddit.com", referrers[0].Referrer)
	require.Equal(t, 20, referrers[0].Count)

	third := traffic.Sample{
		Repo:      repo,
		FetchedAt: time.Date(2024, time.June, 11, 8, 0, 0, 0, time.UTC),
		Daily: []traffic.DailyView{
			dailyView(repo, date(2024, time.June, 10), 30, 11),
			dailyView(repo, date(2024, time.June, 11), 3, 1),
		},
		Totals: traffic.Totals{Repo: repo, Count: 120, Uniques: 38},
		Paths: []traffic.PathCount{
			{Path: "/", Title: "Home", Count: 70, Uniques: 22},
		},
		Referrers: []traffic.ReferrerCount{
			{Referrer: "reddit.com", Count: 10, Uniques: 5},
			{Referrer: "news.ycombinator.com", Count: 8, Uniques: 4},
		},
	}
	require.NoError(t, store.SaveSample(ctx, third))

	referrers, err = store.TopReferrers(ctx, repo, "", date(2024, time.June, 10), date(2024, time.June, 11), 10)
	require.NoError(t, err)
	require.Len(t, referrers, 2)
	require.Equal(t, "reddit.com", referrers[0].Referrer)
	require.Equal(t, 30, referrers[0].Count)
	require.Equal(t, "news.ycombinator.com", referrers[1].Referrer)

	filtered, err := store.TopReferrers(ctx, repo, "REDDIT", date(2024, time.June, 10), date(2024, time.June, 11), 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1, "pattern match is case-insensitive")
	require.Equal(t, "reddit.com", filtered[0].Referrer)

	series, err := store.ReferrerSeries(ctx, repo, "", date(2024, time.June, 10), date(2024, time.June, 11))
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.Equal(t, date(2024, time.June, 10), series[0].Date)
	require.Equal(t, 20, series[0].Count)
	require.Equal(t, 18, series[1].Count)
	require.Equal(t, 9, series[1].Uniques)

	series, err = store.ReferrerSeries(ctx, repo, "news", date(2024, time.June, 10), date(2024, time.June, 11))
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.Equal(t, date(2024, time.June, 11), series[0].Date)
	require.Equal(t, 8, series[0].Count)

	paths, err = store.PopularPaths(ctx, repo, date(2024, time.June, 10), date(2024, time.June, 11), 5)
	require.NoError(t, err)
	require.Equal(t, "/", paths[0].Path)
	require.Equal(t, 130, paths[0].Count, "paths aggregate across days")

	totals, ok, err := store.CurrentTotals(ctx, repo)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 120, totals.Count)
	require.Equal(t, 38, totals.Uniques)

	_, ok, err = store.CurrentTotals(ctx, "rossturk/unknown")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveSample(ctx, traffic.Sample{
		Repo:      "rossturk/tools",
		FetchedAt: time.Date(2024, time.June, 11, 8, 0, 0, 0, time.UTC),
		Daily:     []traffic.DailyView{dailyView("rossturk/tools", date(2024, time.June, 11), 2, 1)},
		Totals:    traffic.Totals{Repo: "rossturk/tools", Count: 2, Uniques: 1},
	}))

	repos, err := store.Repos(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	require.Equal(t, "rossturk/tools", repos[0].Repo)
	require.Equal(t, "rossturk/ursa", repos[1].Repo)
}

// reconcile runs one full reconciliation pass for the action: read prior
// state, plan against the snapshot, apply.
func reconcile(t *testing.T, store *Store, action string, now time.Time, complete bool, occs ...domain.Occurrence) domain.RunStats {
	t.Helper()
	ctx := context.Background()

	snap := domain.Snapshot{Complete: complete, Occurrences: map[domain.Key]domain.Occurrence{}}
	for _, occ := range occs {
		snap.Occurrences[occ.Key()] = occ
	}

	known, err := store.ReadKnownKeys(ctx, action)
	require.NoError(t, err)
	active, err := store.ReadActiveKeys(ctx, action)
	require.NoError(t, err)

	plan := domain.BuildPlan(action, snap, domain.PriorState{Known: known, Active: active}, now)
	stats, err := store.ApplyReconciliation(ctx, plan)
	require.NoError(t, err)
	return stats
}

func occurrence(repo, workflow, version string, stars int, language string) domain.Occurrence {
	owner, name, _ := strings.Cut(repo, "/")
	return domain.Occurrence{
		RepoFullName: repo,
		RepoOwner:    owner,
		RepoName:     name,
		WorkflowPath: ".github/workflows/" + workflow,
		WorkflowFile: workflow,
		Version:      version,
		Stars:        stars,
		Language:     language,
	}
}

func recordFor(t *testing.T, records []domain.UsageRecord, repo string) domain.UsageRecord {
	t.Helper()
	for _, rec := range records {
		if rec.RepoFullName == repo {
			return rec
		}
	}
	t.Fatalf("no record for %s", repo)
	return domain.UsageRecord{}
}

func dailyView(repo string, day time.Time, count, uniques int) traffic.DailyView {
	return traffic.DailyView{Repo: repo, Date: day, Count: count, Uniques: uniques, Timestamp: day.Add(8 * time.Hour)}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("github_traffic_data"),
		postgrescontainer.WithUsername("tracker"),
		postgrescontainer.WithPassword("tracker"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
