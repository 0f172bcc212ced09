package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

func TestBarScalesToChartWidth(t *testing.T) {
	require.Equal(t, chartWidth, strings.Count(bar(10, 10), "▇"))
	require.Equal(t, chartWidth/2, strings.Count(bar(5, 10), "▇"))
	require.Equal(t, 1, strings.Count(bar(1, 1000), "▇"), "tiny values still show one block")
	require.Empty(t, bar(0, 10))
	require.Empty(t, bar(3, 0))
}

func TestClipIsRuneSafe(t *testing.T) {
	require.Equal(t, "short", clip("short", 20))

	long := strings.Repeat("a", 35)
	clipped := clip(long, 30)
	require.Len(t, []rune(clipped), 30)
	require.True(t, strings.HasSuffix(clipped, "..."))

	wide := strings.Repeat("✓", 40)
	require.Equal(t, strings.Repeat("✓", 7)+"...", clip(wide, 10))
}

func TestWriteRunStats(t *testing.T) {
	var buf bytes.Buffer
	WriteRunStats(&buf, "org/act", domain.RunStats{TotalActive: 12, New: 3, Updated: 9, Removed: 2})

	out := buf.String()
	require.Contains(t, out, "Update complete for org/act:")
	require.Contains(t, out, "Total active: 12")
	require.Contains(t, out, "New repos: 3")
	require.Contains(t, out, "Updated repos: 9")
	require.Contains(t, out, "Removed repos: 2")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, Summary{
		ActionName:      "org/act",
		TotalRepos:      10,
		ActiveRepos:     8,
		InactiveRepos:   2,
		TotalWorkflows:  14,
		ActiveWorkflows: 11,
		TotalStars:      123,
	})

	out := buf.String()
	require.Contains(t, out, "Usage summary for org/act:")
	require.Contains(t, out, "Total repositories tracked: 10")
	require.Contains(t, out, "Retention rate: 80.0%")
	require.Contains(t, out, "Combined stars (active repos): 123")
}

func TestWriteSummaryDetailSkipsUnknownVersions(t *testing.T) {
	var buf bytes.Buffer
	WriteSummaryDetail(&buf,
		[]VersionCount{
			{Version: "v4", RepoCount: 6},
			{Version: "unknown", RepoCount: 2},
		},
		[]RepoRollup{
			{RepoFullName: "alpha/web", Stars: 120, Language: "Go"},
			{RepoFullName: "epsilon/legacy", Stars: 2},
		})

	out := buf.String()
	require.Contains(t, out, "Versions in use:")
	require.Contains(t, out, "v4: 6 repos")
	require.NotContains(t, out, "unknown")
	require.Contains(t, out, "Top repositories by stars:")
	require.Contains(t, out, "alpha/web: 120 stars (Go)")
	require.Contains(t, out, "epsilon/legacy: 2 stars\n")
}

func TestWriteSummaryDetailEmptyPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	WriteSummaryDetail(&buf, nil, nil)
	require.Empty(t, buf.String())
}

func TestWriteTimelineGrowthMath(t *testing.T) {
	points := []domain.HistoryPoint{
		{Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ActiveRepos: 10, NewRepos: 2},
		{Date: time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), ActiveRepos: 15, NewRepos: 1, RemovedRepos: 3},
	}

	var buf bytes.Buffer
	WriteTimeline(&buf, 30, points)

	out := buf.String()
	require.Contains(t, out, "Adoption timeline (past 30 days):")
	require.Contains(t, out, "Starting active repos: 10")
	require.Contains(t, out, "Current active repos: 15")
	require.Contains(t, out, "Net growth: +5 (+50.0%)")
	require.Contains(t, out, "Total new adopters: 3")
	require.Contains(t, out, "Total churned: 3")
	require.Contains(t, out, "06/01")
	require.Contains(t, out, "06/10")
}

func TestWriteTimelineShrinkingAdoption(t *testing.T) {
	points := []domain.HistoryPoint{
		{Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ActiveRepos: 20},
		{Date: time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), ActiveRepos: 15, RemovedRepos: 5},
	}

	var buf bytes.Buffer
	WriteTimeline(&buf, 7, points)

	require.Contains(t, buf.String(), "Net growth: -5 (-25.0%)")
}

func TestWriteTimelineEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteTimeline(&buf, 30, nil)
	require.Contains(t, buf.String(), "No timeline data available for the past 30 days.")
}

func TestWriteVersionsChartAndBreakdown(t *testing.T) {
	versions := []VersionCount{
		{Version: "v4", RepoCount: 30, Stars: 900},
		{Version: "v3", RepoCount: 10, Stars: 250},
	}

	var buf bytes.Buffer
	WriteVersions(&buf, versions)

	out := buf.String()
	require.Contains(t, out, "Action version distribution (active repos):")
	require.Contains(t, out, strings.Repeat("▇", chartWidth), "leader fills the chart")
	require.Contains(t, out, "Detailed version breakdown:")
	require.Contains(t, out, "v3")
	require.Contains(t, out, "900")
}

func TestWriteVersionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteVersions(&buf, nil)
	require.Contains(t, buf.String(), "No version data available.")
}

func TestWriteActivityTruncatesLongLists(t *testing.T) {
	activity := Activity{}
	for i := 0; i < 12; i++ {
		activity.Adopters = append(activity.Adopters, Adopter{
			RepoFullName: "owner/repo",
			FirstSeen:    time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC),
		})
	}

	var buf bytes.Buffer
	WriteActivity(&buf, 7, activity)

	out := buf.String()
	require.Contains(t, out, "New adopters (12 repositories):")
	require.Contains(t, out, "... and 2 more")
	require.Contains(t, out, "No repositories stopped using the action in this period.")
}

func TestWriteRecords(t *testing.T) {
	records := []domain.UsageRecord{{
		ActionName:   "org/act",
		RepoFullName: "owner/app",
		WorkflowPath: ".github/workflows/ci.yml",
		Version:      "v2",
		Stars:        42,
		FirstSeen:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		LastSeen:     time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC),
		IsActive:     true,
	}}

	var buf bytes.Buffer
	WriteRecords(&buf, records)

	out := buf.String()
	require.Contains(t, out, "owner/app")
	require.Contains(t, out, "ci.yml")
	require.NotContains(t, out, ".github/workflows/", "workflow paths are shortened to file names")
	require.Contains(t, out, "Active")
}

func TestWriteRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteRecords(&buf, nil)
	require.Contains(t, buf.String(), "No usage records found.")
}
