package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rossturk/github-traffic-grabber/internal/traffic"
)

// WriteTrafficUpdate prints the outcome of one traffic update: current
// totals, the stored history, and today's top paths and referrers.
func WriteTrafficUpdate(w io.Writer, sample traffic.Sample, recent []traffic.DailyView) {
	fmt.Fprintf(w, "\nGitHub traffic data for %s:\n", sample.Repo)
	fmt.Fprintf(w, "Current total views: %d\n", sample.Totals.Count)
	fmt.Fprintf(w, "Current unique visitors: %d\n", sample.Totals.Uniques)

	if len(recent) > 0 {
		fmt.Fprintf(w, "\nHistorical data (last %d days):\n", len(recent))
		for _, day := range recent {
			fmt.Fprintf(w, "  %s: %d views, %d unique visitors\n", day.Date.Format(dateLayout), day.Count, day.Uniques)
		}
	}

	if len(sample.Paths) > 0 {
		shown := sample.Paths
		if len(shown) > 5 {
			shown = shown[:5]
		}
		fmt.Fprintf(w, "\nTop %d popular paths today:\n", len(shown))
		for _, p := range shown {
			fmt.Fprintf(w, "  %s: %d views, %d unique visitors\n", p.Path, p.Count, p.Uniques)
		}
	}

	if len(sample.Referrers) > 0 {
		shown := sample.Referrers
		if len(shown) > 5 {
			shown = shown[:5]
		}
		fmt.Fprintf(w, "\nTop %d referrers today:\n", len(shown))
		for _, r := range shown {
			fmt.Fprintf(w, "  %s: %d views, %d unique visitors\n", r.Referrer, r.Count, r.Uniques)
		}
	}
}

// WriteDailyTraffic prints view totals for the window plus daily charts.
func WriteDailyTraffic(w io.Writer, repo string, days int, views []traffic.DailyView) {
	if len(views) == 0 {
		fmt.Fprintf(w, "No daily traffic data found for %s\n", repo)
		return
	}

	var totalViews, totalUniques int
	maxViews, maxUniques := 0, 0
	for _, day := range views {
		totalViews += day.Count
		totalUniques += day.Uniques
		if day.Count > maxViews {
			maxViews = day.Count
		}
		if day.Uniques > maxUniques {
			maxUniques = day.Uniques
		}
	}

	fmt.Fprintf(w, "\nDaily traffic summary (past %d days):\n", days)
	fmt.Fprintf(w, "  Total views: %d\n", totalViews)
	fmt.Fprintf(w, "  Total unique visitors: %d\n", totalUniques)
	fmt.Fprintf(w, "  Average daily views: %.1f\n", float64(totalViews)/float64(len(views)))
	fmt.Fprintf(w, "  Average daily uniques: %.1f\n", float64(totalUniques)/float64(len(views)))

	fmt.Fprintln(w, "\nDaily views:")
	for _, day := range views {
		fmt.Fprintf(w, "  %s %s %d\n", day.Date.Format("01/02"), bar(day.Count, maxViews), day.Count)
	}

	fmt.Fprintln(w, "\nDaily unique visitors:")
	for _, day := range views {
		fmt.Fprintf(w, "  %s %s %d\n", day.Date.Format("01/02"), bar(day.Uniques, maxUniques), day.Uniques)
	}
}

// WritePopularPaths prints the most-viewed content paths for the window.
func WritePopularPaths(w io.Writer, repo string, days int, paths []traffic.PathCount) {
	if len(paths) == 0 {
		fmt.Fprintf(w, "No popular paths data found for %s\n", repo)
		return
	}

	fmt.Fprintf(w, "\nTop %d popular paths (past %d days):\n", len(paths), days)
	for _, p := range paths {
		fmt.Fprintf(w, "  %-42s %s %d\n", clip(p.Path, 40), bar(p.Count, paths[0].Count), p.Count)
	}

	fmt.Fprintln(w, "\nDetailed path breakdown:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Path", "Views", "Unique"})
	for _, p := range paths {
		tw.AppendRow(table.Row{clip(p.Path, 43), p.Count, p.Uniques})
	}
	tw.Render()
}

// WriteReferrers prints the top referring sites for the window.
func WriteReferrers(w io.Writer, repo string, days int, referrers []traffic.ReferrerCount) {
	if len(referrers) == 0 {
		fmt.Fprintf(w, "No referrer data found for %s\n", repo)
		return
	}

	fmt.Fprintf(w, "\nTop %d referrers (past %d days):\n", len(referrers), days)
	for _, r := range referrers {
		fmt.Fprintf(w, "  %-32s %s %d\n", clip(r.Referrer, 30), bar(r.Count, referrers[0].Count), r.Count)
	}
}

// WriteReferrerAnalytics prints the full referral picture for one
// repository: window totals, the daily referral series, and the top
// referring sites.
func WriteReferrerAnalytics(w io.Writer, repo string, days int, pattern string, totals []traffic.ReferrerCount, series []traffic.DailyView) {
	fmt.Fprintf(w, "\nReferrer Analytics for %s\n", repo)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	if len(totals) == 0 && len(series) == 0 {
		fmt.Fprintf(w, "No referrer data found for this repository in the past %d days.\n", days)
		if pattern != "" {
			fmt.Fprintf(w, "Filter applied: %q\n", pattern)
		}
		return
	}

	fmt.Fprintf(w, "\nShowing data for the past %d days\n", days)

	filterText := ""
	if pattern != "" {
		filterText = fmt.Sprintf(" matching %q", pattern)
	}

	var views, uniques int
	for _, r := range totals {
		views += r.Count
		uniques += r.Uniques
	}
	fmt.Fprintf(w, "\nTotal referrals%s:\n", filterText)
	fmt.Fprintf(w, "  Views: %d\n", views)
	fmt.Fprintf(w, "  Unique visitors: %d\n", uniques)

	if len(series) > 0 {
		maxViews := 0
		for _, day := range series {
			if day.Count > maxViews {
				maxViews = day.Count
			}
		}
		fmt.Fprintf(w, "\nDaily referral traffic%s:\n", filterText)
		for _, day := range series {
			fmt.Fprintf(w, "  %s %s %d\n", day.Date.Format("01/02"), bar(day.Count, maxViews), day.Count)
		}
	}

	if len(totals) > 0 {
		fmt.Fprintf(w, "\nTop %d referrers by views:\n", len(totals))
		for _, r := range totals {
			fmt.Fprintf(w, "  %-32s %s %d\n", clip(r.Referrer, 30), bar(r.Count, totals[0].Count), r.Count)
		}
	}
}

// WriteRepoComparison prints every repository's current totals side by
// side, busiest first.
func WriteRepoComparison(w io.Writer, totals []traffic.Totals) {
	if len(totals) == 0 {
		fmt.Fprintln(w, "No traffic data recorded yet.")
		return
	}

	sorted := make([]traffic.Totals, len(totals))
	copy(sorted, totals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })

	fmt.Fprintln(w, "\nRepository comparison:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Repository", "Total Views", "Uniques", "Last Update"})
	for _, t := range sorted {
		tw.AppendRow(table.Row{clip(t.Repo, 28), t.Count, t.Uniques, t.Timestamp.Format("2006-01-02 15:04")})
	}
	tw.Render()

	if len(sorted) > 1 {
		fmt.Fprintln(w, "\nViews comparison:")
		top := sorted
		if len(top) > 10 {
			top = top[:10]
		}
		for _, t := range top {
			fmt.Fprintf(w, "  %-32s %s %d\n", clip(t.Repo, 30), bar(t.Count, top[0].Count), t.Count)
		}
	}
}

// WriteTrackedRepos lists repositories present in the traffic store.
func WriteTrackedRepos(w io.Writer, repos []traffic.TrackedRepo) {
	if len(repos) == 0 {
		fmt.Fprintln(w, "No repositories tracked yet.")
		return
	}

	fmt.Fprintln(w, "\nRepositories with traffic data:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Repository", "Last Update"})
	for _, r := range repos {
		tw.AppendRow(table.Row{r.Repo, r.LastUpdate.Format("2006-01-02 15:04")})
	}
	tw.Render()
}
