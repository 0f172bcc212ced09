package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
	"github.com/rossturk/github-traffic-grabber/internal/report"
)

// Summarize implements report.Querier.
func (s *Store) Summarize(ctx context.Context, action string) (report.Summary, error) {
	const query = `SELECT
            COUNT(DISTINCT repo_full_name) AS total_repos,
            COUNT(DISTINCT CASE WHEN is_active THEN repo_full_name END) AS active_repos,
            COUNT(DISTINCT CASE WHEN NOT is_active THEN repo_full_name END) AS inactive_repos,
            COUNT(*) AS total_workflows,
            COUNT(CASE WHEN is_active THEN 1 END) AS active_workflows,
            COALESCE(SUM(CASE WHEN is_active THEN stars ELSE 0 END), 0) AS total_stars
        FROM action_usage
        WHERE action_name = $1`

	summary := report.Summary{ActionName: action}
	err := s.pool.QueryRow(ctx, query, action).Scan(
		&summary.TotalRepos,
		&summary.ActiveRepos,
		&summary.InactiveRepos,
		&summary.TotalWorkflows,
		&summary.ActiveWorkflows,
		&summary.TotalStars,
	)
	if err != nil {
		return report.Summary{}, fmt.Errorf("summarize %s: %w", action, err)
	}
	return summary, nil
}

// VersionBreakdown implements report.Querier. Records whose version never
// resolved group under "unknown".
func (s *Store) VersionBreakdown(ctx context.Context, action string) ([]report.VersionCount, error) {
	const query = `SELECT
            COALESCE(action_version, 'unknown') AS version,
            COUNT(DISTINCT repo_full_name) AS repo_count,
            COALESCE(SUM(stars), 0) AS total_stars
        FROM action_usage
        WHERE action_name = $1 AND is_active = TRUE
        GROUP BY action_version
        ORDER BY repo_count DESC`

	rows, err := s.pool.Query(ctx, query, action)
	if err != nil {
		return nil, fmt.Errorf("version breakdown: %w", err)
	}
	defer rows.Close()

	var versions []report.VersionCount
	for rows.Next() {
		var v report.VersionCount
		if err := rows.Scan(&v.Version, &v.RepoCount, &v.Stars); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// LanguageBreakdown implements report.Querier.
func (s *Store) LanguageBreakdown(ctx context.Context, action string, limit int) ([]report.LanguageCount, error) {
	const query = `SELECT
            COALESCE(language, 'Unknown') AS language,
            COUNT(DISTINCT repo_full_name) AS repo_count,
            COALESCE(SUM(stars), 0) AS total_stars
        FROM action_usage
        WHERE action_name = $1 AND is_active = TRUE
        GROUP BY language
        ORDER BY repo_count DESC
        LIMIT $2`

	rows, err := s.pool.Query(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("language breakdown: %w", err)
	}
	defer rows.Close()

	var languages []report.LanguageCount
	for rows.Next() {
		var lang report.LanguageCount
		if err := rows.Scan(&lang.Language, &lang.RepoCount, &lang.Stars); err != nil {
			return nil, fmt.Errorf("scan language row: %w", err)
		}
		languages = append(languages, lang)
	}
	return languages, rows.Err()
}

// TopRepos implements report.Querier, collapsing workflow rows per
// repository and ordering by stars.
func (s *Store) TopRepos(ctx context.Context, action string, limit int, includeInactive bool) ([]report.RepoRollup, error) {
	query := `SELECT
            repo_full_name,
            MAX(stars) AS stars,
            COALESCE(MAX(language), '') AS language,
            COALESCE(MAX(description), '') AS description,
            BOOL_OR(is_active) AS is_active,
            COUNT(*) AS workflow_count,
            MIN(first_seen) AS first_seen,
            MAX(last_seen) AS last_seen
        FROM action_usage
        WHERE action_name = $1`
	if !includeInactive {
		query += ` AND is_active = TRUE`
	}
	query += ` GROUP BY repo_full_name ORDER BY stars DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("top repos: %w", err)
	}
	defer rows.Close()

	var repos []report.RepoRollup
	for rows.Next() {
		var r report.RepoRollup
		if err := rows.Scan(&r.RepoFullName, &r.Stars, &r.Language, &r.Description,
			&r.IsActive, &r.WorkflowCount, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("scan repo row: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// Timeline implements report.Querier, returning history points inside the
// window in date order.
func (s *Store) Timeline(ctx context.Context, action string, since, until time.Time) ([]domain.HistoryPoint, error) {
	const query = `SELECT action_name, date, total_repos, new_repos, removed_repos, active_repos, timestamp
        FROM action_usage_history
        WHERE action_name = $1 AND date >= $2 AND date <= $3
        ORDER BY date`

	rows, err := s.pool.Query(ctx, query, action, since, until)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	var points []domain.HistoryPoint
	for rows.Next() {
		var p domain.HistoryPoint
		if err := rows.Scan(&p.ActionName, &p.Date, &p.TotalRepos, &p.NewRepos,
			&p.RemovedRepos, &p.ActiveRepos, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// RecentActivity implements report.Querier: repositories first seen since
// the cutoff, and repositories deactivated since it.
func (s *Store) RecentActivity(ctx context.Context, action string, since time.Time) (report.Activity, error) {
	const adoptersQuery = `SELECT DISTINCT repo_full_name, stars, COALESCE(language, '') AS language, first_seen
        FROM action_usage
        WHERE action_name = $1 AND first_seen >= $2
        ORDER BY first_seen DESC, stars DESC`

	const churnQuery = `SELECT DISTINCT repo_full_name, stars, COALESCE(language, '') AS language, first_seen, last_seen
        FROM action_usage
        WHERE action_name = $1 AND is_active = FALSE AND last_seen >= $2
        ORDER BY last_seen DESC, stars DESC`

	var activity report.Activity

	rows, err := s.pool.Query(ctx, adoptersQuery, action, since)
	if err != nil {
		return report.Activity{}, fmt.Errorf("recent adopters: %w", err)
	}
	for rows.Next() {
		var a report.Adopter
		if err := rows.Scan(&a.RepoFullName, &a.Stars, &a.Language, &a.FirstSeen); err != nil {
			rows.Close()
			return report.Activity{}, fmt.Errorf("scan adopter row: %w", err)
		}
		activity.Adopters = append(activity.Adopters, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report.Activity{}, err
	}

	rows, err = s.pool.Query(ctx, churnQuery, action, since)
	if err != nil {
		return report.Activity{}, fmt.Errorf("recent churn: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c report.Churn
		if err := rows.Scan(&c.RepoFullName, &c.Stars, &c.Language, &c.FirstSeen, &c.LastSeen); err != nil {
			return report.Activity{}, fmt.Errorf("scan churn row: %w", err)
		}
		activity.Churned = append(activity.Churned, c)
	}
	return activity, rows.Err()
}

// TrackedActions implements report.Querier.
func (s *Store) TrackedActions(ctx context.Context) ([]report.TrackedAction, error) {
	const query = `SELECT action_name,
            COUNT(DISTINCT repo_full_name) AS total_repos,
            COUNT(DISTINCT CASE WHEN is_active THEN repo_full_name END) AS active_repos,
            MAX(last_seen) AS last_updated
        FROM action_usage
        GROUP BY action_name
        ORDER BY active_repos DESC, action_name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tracked actions: %w", err)
	}
	defer rows.Close()

	var actions []report.TrackedAction
	for rows.Next() {
		var a report.TrackedAction
		if err := rows.Scan(&a.ActionName, &a.TotalRepos, &a.ActiveRepos, &a.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
