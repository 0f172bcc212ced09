package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

// WriteDetailedReport writes every record grouped by action, one block per
// workflow usage. The export command saves this to disk.
func WriteDetailedReport(w io.Writer, records []domain.UsageRecord, generatedAt time.Time) {
	fmt.Fprintln(w, "GitHub Action Usage Report")
	fmt.Fprintf(w, "Generated: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w, strings.Repeat("=", 80))

	current := ""
	for _, rec := range records {
		if rec.ActionName != current {
			fmt.Fprintf(w, "\nAction: %s\n", rec.ActionName)
			fmt.Fprintln(w, strings.Repeat("-", 80))
			current = rec.ActionName
		}

		fmt.Fprintf(w, "\n  Repository: %s [%s]\n", rec.RepoFullName, strings.ToUpper(status(rec.IsActive)))
		fmt.Fprintf(w, "    Workflow: %s\n", rec.WorkflowPath)
		fmt.Fprintf(w, "    Version: %s\n", orUnknown(rec.Version))
		fmt.Fprintf(w, "    Stars: %d\n", rec.Stars)
		fmt.Fprintf(w, "    Language: %s\n", orUnknown(rec.Language))
		fmt.Fprintf(w, "    First seen: %s\n", rec.FirstSeen.Format(dateLayout))
		fmt.Fprintf(w, "    Last seen: %s\n", rec.LastSeen.Format(dateLayout))
		if rec.Description != "" {
			fmt.Fprintf(w, "    Description: %s\n", rec.Description)
		}
	}
}
