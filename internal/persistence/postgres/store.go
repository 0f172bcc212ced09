// Package postgres provides the PostgreSQL-backed stores for action usage
// tracking and repository traffic.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
	"github.com/rossturk/github-traffic-grabber/internal/observability"
)

// Store persists usage records and history points.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ReadActiveKeys returns the keys currently flagged active for the action.
func (s *Store) ReadActiveKeys(ctx context.Context, action string) (map[domain.Key]struct{}, error) {
	const query = `SELECT repo_full_name, workflow_path FROM action_usage
        WHERE action_name = $1 AND is_active = TRUE`
	return s.readKeys(ctx, query, action)
}

// ReadKnownKeys returns every key ever recorded for the action, active or
// not. Together with ReadActiveKeys this is the prior state a run plans
// against.
func (s *Store) ReadKnownKeys(ctx context.Context, action string) (map[domain.Key]struct{}, error) {
	const query = `SELECT repo_full_name, workflow_path FROM action_usage
        WHERE action_name = $1`
	return s.readKeys(ctx, query, action)
}

func (s *Store) readKeys(ctx context.Context, query, action string) (map[domain.Key]struct{}, error) {
	rows, err := s.pool.Query(ctx, query, action)
	if err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.Key]struct{})
	for rows.Next() {
		var key domain.Key
		if err := rows.Scan(&key.RepoFullName, &key.WorkflowPath); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

const insertUsageStmt = `INSERT INTO action_usage (
        action_name, repo_full_name, repo_owner, repo_name, action_version,
        workflow_file, workflow_path, first_seen, last_seen, is_active,
        stars, is_fork, is_private, default_branch, language, description,
        created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

const updateUsageStmt = `UPDATE action_usage
    SET last_seen = $4,
        is_active = TRUE,
        action_version = $5,
        stars = $6,
        is_fork = $7,
        is_private = $8,
        default_branch = $9,
        language = $10,
        description = $11,
        updated_at = $12
    WHERE action_name = $1 AND repo_full_name = $2 AND workflow_path = $3`

const deactivateUsageStmt = `UPDATE action_usage
    SET is_active = FALSE, last_seen = $4, updated_at = $5
    WHERE action_name = $1 AND repo_full_name = $2 AND workflow_path = $3`

const upsertHistoryStmt = `INSERT INTO action_usage_history
        (action_name, date, total_repos, new_repos, removed_repos, active_repos, timestamp)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (action_name, date) DO UPDATE
    SET total_repos = EXCLUDED.total_repos,
        new_repos = EXCLUDED.new_repos,
        removed_repos = EXCLUDED.removed_repos,
        active_repos = EXCLUDED.active_repos,
        timestamp = EXCLUDED.timestamp`

// ApplyReconciliation commits one run's plan in a single transaction. Either
// every insert, refresh, deactivation, and the history upsert land together,
// or the prior state survives untouched.
func (s *Store) ApplyReconciliation(ctx context.Context, plan domain.Plan) (domain.RunStats, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.RunStats{}, fmt.Errorf("begin reconciliation: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, rec := range plan.Inserts {
		batch.Queue(insertUsageStmt,
			rec.ActionName,
			rec.RepoFullName,
			rec.RepoOwner,
			rec.RepoName,
			nullIfEmpty(rec.Version),
			nullIfEmpty(rec.WorkflowFile),
			rec.WorkflowPath,
			rec.FirstSeen,
			rec.LastSeen,
			rec.IsActive,
			rec.Stars,
			rec.IsFork,
			rec.IsPrivate,
			nullIfEmpty(rec.DefaultBranch),
			nullIfEmpty(rec.Language),
			nullIfEmpty(rec.Description),
			rec.CreatedAt,
			rec.UpdatedAt,
		)
	}
	for _, occ := range plan.Updates {
		batch.Queue(updateUsageStmt,
			plan.Action,
			occ.RepoFullName,
			occ.WorkflowPath,
			plan.RunDate,
			nullIfEmpty(occ.Version),
			occ.Stars,
			occ.IsFork,
			occ.IsPrivate,
			nullIfEmpty(occ.DefaultBranch),
			nullIfEmpty(occ.Language),
			nullIfEmpty(occ.Description),
			plan.RunTime,
		)
	}
	for _, key := range plan.Deactivations {
		batch.Queue(deactivateUsageStmt, plan.Action, key.RepoFullName, key.WorkflowPath, plan.RunDate, plan.RunTime)
	}
	if plan.History != nil {
		h := plan.History
		batch.Queue(upsertHistoryStmt, h.ActionName, h.Date, h.TotalRepos, h.NewRepos, h.RemovedRepos, h.ActiveRepos, h.Timestamp)
	}

	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err = results.Exec(); err != nil {
				results.Close()
				return domain.RunStats{}, fmt.Errorf("apply write %d of %d: %w", i+1, batch.Len(), err)
			}
		}
		if err = results.Close(); err != nil {
			return domain.RunStats{}, fmt.Errorf("close batch: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.RunStats{}, fmt.Errorf("commit reconciliation: %w", err)
	}

	stats := plan.Stats()
	observability.RecordReconcileApplied(plan.Action, stats.TotalActive, plan.RunTime)
	return stats, nil
}

// StateFilter narrows record listings.
type StateFilter string

const (
	StateAll      StateFilter = "all"
	StateActive   StateFilter = "active"
	StateInactive StateFilter = "inactive"
)

// Records lists usage records for one action, optionally narrowed to active
// or inactive, ordered the way the listing commands print them.
func (s *Store) Records(ctx context.Context, action string, state StateFilter) ([]domain.UsageRecord, error) {
	query := `SELECT action_name, repo_full_name, repo_owner, repo_name, action_version,
            workflow_file, workflow_path, first_seen, last_seen, is_active,
            stars, is_fork, is_private, default_branch, language, description,
            created_at, updated_at
        FROM action_usage WHERE action_name = $1`

	switch state {
	case StateActive:
		query += ` AND is_active = TRUE ORDER BY stars DESC, repo_full_name`
	case StateInactive:
		query += ` AND is_active = FALSE ORDER BY last_seen DESC, repo_full_name`
	default:
		query += ` ORDER BY is_active DESC, stars DESC, repo_full_name`
	}

	rows, err := s.pool.Query(ctx, query, action)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AllRecords returns every record across every action, grouped for export.
func (s *Store) AllRecords(ctx context.Context) ([]domain.UsageRecord, error) {
	const query = `SELECT action_name, repo_full_name, repo_owner, repo_name, action_version,
            workflow_file, workflow_path, first_seen, last_seen, is_active,
            stars, is_fork, is_private, default_branch, language, description,
            created_at, updated_at
        FROM action_usage ORDER BY action_name, is_active DESC, stars DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		var version, workflowFile, defaultBranch, language, description *string
		var createdAt, updatedAt *time.Time
		if err := rows.Scan(
			&rec.ActionName,
			&rec.RepoFullName,
			&rec.RepoOwner,
			&rec.RepoName,
			&version,
			&workflowFile,
			&rec.WorkflowPath,
			&rec.FirstSeen,
			&rec.LastSeen,
			&rec.IsActive,
			&rec.Stars,
			&rec.IsFork,
			&rec.IsPrivate,
			&defaultBranch,
			&language,
			&description,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Version = deref(version)
		rec.WorkflowFile = deref(workflowFile)
		rec.DefaultBranch = deref(defaultBranch)
		rec.Language = deref(language)
		rec.Description = deref(description)
		rec.CreatedAt = derefTime(createdAt)
		rec.UpdatedAt = derefTime(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
