package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

const (
	chartWidth = 50
	dateLayout = "2006-01-02"
)

// WriteRunStats prints the outcome of one reconciliation run.
func WriteRunStats(w io.Writer, action string, stats domain.RunStats) {
	fmt.Fprintf(w, "\nUpdate complete for %s:\n", action)
	fmt.Fprintf(w, "  Total active: %d\n", stats.TotalActive)
	fmt.Fprintf(w, "  New repos: %d\n", stats.New)
	fmt.Fprintf(w, "  Updated repos: %d\n", stats.Updated)
	fmt.Fprintf(w, "  Removed repos: %d\n", stats.Removed)
}

// WriteSummary prints one action's headline numbers.
func WriteSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\nUsage summary for %s:\n", s.ActionName)
	fmt.Fprintf(w, "  Total repositories tracked: %d\n", s.TotalRepos)
	fmt.Fprintf(w, "  Currently active: %d\n", s.ActiveRepos)
	fmt.Fprintf(w, "  No longer using: %d\n", s.InactiveRepos)
	fmt.Fprintf(w, "  Retention rate: %.1f%%\n", s.RetentionRate())
	fmt.Fprintf(w, "  Total workflows: %d\n", s.TotalWorkflows)
	fmt.Fprintf(w, "  Active workflows: %d\n", s.ActiveWorkflows)
	fmt.Fprintf(w, "  Combined stars (active repos): %d\n", s.TotalStars)
}

// WriteSummaryDetail prints the versions-in-use and top-repository sections
// that follow a summary block. Unresolved versions are left out here; the
// versions command reports them.
func WriteSummaryDetail(w io.Writer, versions []VersionCount, repos []RepoRollup) {
	var named []VersionCount
	for _, v := range versions {
		if v.Version != "unknown" {
			named = append(named, v)
		}
	}
	if len(named) > 0 {
		fmt.Fprintln(w, "  Versions in use:")
		for _, v := range named {
			fmt.Fprintf(w, "    %s: %d repos\n", v.Version, v.RepoCount)
		}
	}
	if len(repos) > 0 {
		fmt.Fprintln(w, "  Top repositories by stars:")
		for _, r := range repos {
			lang := ""
			if r.Language != "" {
				lang = fmt.Sprintf(" (%s)", r.Language)
			}
			fmt.Fprintf(w, "    %s: %d stars%s\n", r.RepoFullName, r.Stars, lang)
		}
	}
}

// WriteVersions prints the pinned-version distribution, a bar chart of the
// top ten followed by the full breakdown.
func WriteVersions(w io.Writer, versions []VersionCount) {
	if len(versions) == 0 {
		fmt.Fprintln(w, "No version data available.")
		return
	}

	fmt.Fprintln(w, "\nAction version distribution (active repos):")
	top := versions
	if len(top) > 10 {
		top = top[:10]
	}
	for _, v := range top {
		fmt.Fprintf(w, "  %-24s %s %d\n", clip(v.Version, 20), bar(v.RepoCount, top[0].RepoCount), v.RepoCount)
	}

	fmt.Fprintln(w, "\nDetailed version breakdown:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Version", "Repos", "Stars"})
	for _, v := range versions {
		tw.AppendRow(table.Row{clip(v.Version, 28), v.RepoCount, v.Stars})
	}
	tw.Render()
}

// WriteLanguages prints the primary-language distribution as a bar chart.
func WriteLanguages(w io.Writer, languages []LanguageCount) {
	if len(languages) == 0 {
		fmt.Fprintln(w, "No language data available.")
		return
	}

	fmt.Fprintln(w, "\nProgramming language distribution (active repos):")
	top := languages
	if len(top) > 10 {
		top = top[:10]
	}
	for _, lang := range top {
		fmt.Fprintf(w, "  %-24s %s %d\n", clip(lang.Language, 20), bar(lang.RepoCount, top[0].RepoCount), lang.RepoCount)
	}
}

// WriteRepos prints the stars-ordered repository rollup.
func WriteRepos(w io.Writer, repos []RepoRollup, includeInactive bool) {
	if len(repos) == 0 {
		fmt.Fprintln(w, "No repository data available.")
		return
	}

	scope := "active"
	if includeInactive {
		scope = "all"
	}
	fmt.Fprintf(w, "\nTop %d repositories by stars (%s):\n", len(repos), scope)
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Repository", "Stars", "Language", "Workflows", "Status"})
	for _, r := range repos {
		tw.AppendRow(table.Row{clip(r.RepoFullName, 38), r.Stars, orUnknown(r.Language), r.WorkflowCount, status(r.IsActive)})
	}
	tw.Render()
}

// WriteTimeline prints growth over the window plus a sampled chart of the
// active-repository count.
func WriteTimeline(w io.Writer, days int, points []domain.HistoryPoint) {
	if len(points) == 0 {
		fmt.Fprintf(w, "No timeline data available for the past %d days.\n", days)
		return
	}

	fmt.Fprintf(w, "\nAdoption timeline (past %d days):\n", days)
	if len(points) >= 2 {
		start := points[0].ActiveRepos
		end := points[len(points)-1].ActiveRepos
		growth := end - start
		var pct float64
		if start > 0 {
			pct = float64(growth) / float64(start) * 100
		}
		var totalNew, totalRemoved int
		for _, p := range points {
			totalNew += p.NewRepos
			totalRemoved += p.RemovedRepos
		}
		fmt.Fprintf(w, "  Starting active repos: %d\n", start)
		fmt.Fprintf(w, "  Current active repos: %d\n", end)
		fmt.Fprintf(w, "  Net growth: %+d (%+.1f%%)\n", growth, pct)
		fmt.Fprintf(w, "  Total new adopters: %d\n", totalNew)
		fmt.Fprintf(w, "  Total churned: %d\n", totalRemoved)
	}

	fmt.Fprintln(w, "\nActive repositories over time:")
	maxActive := 0
	for _, p := range points {
		if p.ActiveRepos > maxActive {
			maxActive = p.ActiveRepos
		}
	}
	// Sample so long windows stay readable.
	step := len(points) / 20
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(points); i += step {
		p := points[i]
		fmt.Fprintf(w, "  %s %s %d\n", p.Date.Format("01/02"), bar(p.ActiveRepos, maxActive), p.ActiveRepos)
	}
}

// WriteActivity prints recent adopters and churn, ten of each at most.
func WriteActivity(w io.Writer, days int, activity Activity) {
	fmt.Fprintf(w, "\nRecent activity (past %d days):\n", days)

	if len(activity.Adopters) == 0 {
		fmt.Fprintln(w, "\nNo new adopters in this period.")
	} else {
		fmt.Fprintf(w, "\nNew adopters (%d repositories):\n", len(activity.Adopters))
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Repository", "Stars", "Language", "First Seen"})
		shown := activity.Adopters
		if len(shown) > 10 {
			shown = shown[:10]
		}
		for _, a := range shown {
			tw.AppendRow(table.Row{clip(a.RepoFullName, 38), a.Stars, orUnknown(a.Language), a.FirstSeen.Format(dateLayout)})
		}
		tw.Render()
		if extra := len(activity.Adopters) - len(shown); extra > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", extra)
		}
	}

	if len(activity.Churned) == 0 {
		fmt.Fprintln(w, "\nNo repositories stopped using the action in this period.")
	} else {
		fmt.Fprintf(w, "\nRepositories that stopped using the action (%d repositories):\n", len(activity.Churned))
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Repository", "Stars", "Days Used", "Last Seen"})
		shown := activity.Churned
		if len(shown) > 10 {
			shown = shown[:10]
		}
		for _, c := range shown {
			tw.AppendRow(table.Row{clip(c.RepoFullName, 38), c.Stars, c.DaysUsed(), c.LastSeen.Format(dateLayout)})
		}
		tw.Render()
		if extra := len(activity.Churned) - len(shown); extra > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", extra)
		}
	}
}

// WriteActions prints every tracked action with headline counts.
func WriteActions(w io.Writer, actions []TrackedAction) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No actions currently tracked.")
		return
	}

	fmt.Fprintln(w, "\nCurrently tracked actions:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Action", "Repos", "Active", "Last Updated"})
	for _, a := range actions {
		tw.AppendRow(table.Row{a.ActionName, a.TotalRepos, a.ActiveRepos, a.LastUpdated.Format(dateLayout)})
	}
	tw.Render()
}

// WriteRecords prints per-workflow usage rows for the list command.
func WriteRecords(w io.Writer, records []domain.UsageRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No usage records found.")
		return
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Repository", "Workflow", "Version", "Stars", "First Seen", "Last Seen", "Status"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			clip(r.RepoFullName, 38),
			workflowName(r.WorkflowPath),
			orUnknown(r.Version),
			r.Stars,
			r.FirstSeen.Format(dateLayout),
			r.LastSeen.Format(dateLayout),
			status(r.IsActive),
		})
	}
	tw.Render()
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func bar(value, max int) string {
	if max <= 0 || value <= 0 {
		return ""
	}
	n := value * chartWidth / max
	if n < 1 {
		n = 1
	}
	return strings.Repeat("▇", n)
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func workflowName(path string) string {
	return strings.TrimPrefix(path, ".github/workflows/")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func status(active bool) string {
	if active {
		return "Active"
	}
	return "Inactive"
}
