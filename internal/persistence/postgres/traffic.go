package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rossturk/github-traffic-grabber/internal/observability"
	"github.com/rossturk/github-traffic-grabber/internal/traffic"
)

// TrafficStore persists repository traffic samples.
type TrafficStore struct {
	pool *pgxpool.Pool
}

// NewTrafficStore constructs a TrafficStore.
func NewTrafficStore(pool *pgxpool.Pool) *TrafficStore {
	return &TrafficStore{pool: pool}
}

const upsertDailyViewStmt = `INSERT INTO daily_views (repo, date, count, uniques, timestamp)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (repo, date) DO UPDATE
    SET count = EXCLUDED.count,
        uniques = EXCLUDED.uniques,
        timestamp = EXCLUDED.timestamp`

const upsertTotalsStmt = `INSERT INTO current_totals (repo, count, uniques, timestamp)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (repo) DO UPDATE
    SET count = EXCLUDED.count,
        uniques = EXCLUDED.uniques,
        timestamp = EXCLUDED.timestamp`

// SaveSample lands one traffic sample in a single transaction. Paths and
// referrers are replaced for the sample's day only when the sample carries
// them, so an endpoint hiccup does not wipe the day's earlier data.
func (s *TrafficStore) SaveSample(ctx context.Context, sample traffic.Sample) error {
	day := dateOnly(sample.FetchedAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin traffic save: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, view := range sample.Daily {
		batch.Queue(upsertDailyViewStmt, sample.Repo, view.Date, view.Count, view.Uniques, view.Timestamp)
	}
	batch.Queue(upsertTotalsStmt, sample.Repo, sample.Totals.Count, sample.Totals.Uniques, sample.FetchedAt)

	if len(sample.Paths) > 0 {
		batch.Queue(`DELETE FROM popular_paths WHERE repo = $1 AND date = $2`, sample.Repo, day)
		for _, p := range sample.Paths {
			batch.Queue(`INSERT INTO popular_paths (repo, date, path, title, count, uniques, timestamp)
                VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				sample.Repo, day, p.Path, p.Title, p.Count, p.Uniques, sample.FetchedAt)
		}
	}
	if len(sample.Referrers) > 0 {
		batch.Queue(`DELETE FROM referrers WHERE repo = $1 AND date = $2`, sample.Repo, day)
		for _, r := range sample.Referrers {
			batch.Queue(`INSERT INTO referrers (repo, date, referrer, count, uniques, timestamp)
                VALUES ($1,$2,$3,$4,$5,$6)`,
				sample.Repo, day, r.Referrer, r.Count, r.Uniques, sample.FetchedAt)
		}
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err = results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("apply traffic write %d of %d: %w", i+1, batch.Len(), err)
		}
	}
	if err = results.Close(); err != nil {
		return fmt.Errorf("close traffic batch: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit traffic save: %w", err)
	}

	observability.RecordTrafficApplied(sample.Repo, sample.FetchedAt)
	return nil
}

// RecentViews returns the newest stored days for one repository, newest
// first.
func (s *TrafficStore) RecentViews(ctx context.Context, repo string, limit int) ([]traffic.DailyView, error) {
	const query = `SELECT date, count, uniques, timestamp FROM daily_views
        WHERE repo = $1 ORDER BY date DESC LIMIT $2`
	return s.queryViews(ctx, repo, query, repo, limit)
}

// DailyViews returns stored days inside the window in date order.
func (s *TrafficStore) DailyViews(ctx context.Context, repo string, since, until time.Time) ([]traffic.DailyView, error) {
	const query = `SELECT date, count, uniques, timestamp FROM daily_views
        WHERE repo = $1 AND date >= $2 AND date <= $3 ORDER BY date`
	return s.queryViews(ctx, repo, query, repo, since, until)
}

func (s *TrafficStore) queryViews(ctx context.Context, repo, query string, args ...any) ([]traffic.DailyView, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read daily views: %w", err)
	}
	defer rows.Close()

	var views []traffic.DailyView
	for rows.Next() {
		view := traffic.DailyView{Repo: repo}
		if err := rows.Scan(&view.Date, &view.Count, &view.Uniques, &view.Timestamp); err != nil {
			return nil, fmt.Errorf("scan daily view: %w", err)
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

// PopularPaths aggregates path views across the window, most viewed first.
func (s *TrafficStore) PopularPaths(ctx context.Context, repo string, since, until time.Time, limit int) ([]traffic.PathCount, error) {
	const query = `SELECT path, COALESCE(title, '') AS title, SUM(count) AS total_views, SUM(uniques) AS total_uniques
        FROM popular_paths
        WHERE repo = $1 AND date >= $2 AND date <= $3
        GROUP BY path, title
        ORDER BY total_views DESC
        LIMIT $4`

	rows, err := s.pool.Query(ctx, query, repo, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("read popular paths: %w", err)
	}
	defer rows.Close()

	var paths []traffic.PathCount
	for rows.Next() {
		var p traffic.PathCount
		if err := rows.Scan(&p.Path, &p.Title, &p.Count, &p.Uniques); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// TopReferrers aggregates referrer views across the window, most viewed
// first. A non-empty pattern keeps only referrers containing it.
func (s *TrafficStore) TopReferrers(ctx context.Context, repo, pattern string, since, until time.Time, limit int) ([]traffic.ReferrerCount, error) {
	const query = `SELECT referrer, SUM(count) AS total_views, SUM(uniques) AS total_uniques
        FROM referrers
        WHERE repo = $1 AND date >= $2 AND date <= $3
          AND ($4 = '' OR referrer ILIKE '%' || $4 || '%')
        GROUP BY referrer
        ORDER BY total_views DESC
        LIMIT $5`

	rows, err := s.pool.Query(ctx, query, repo, since, until, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("read referrers: %w", err)
	}
	defer rows.Close()

	var referrers []traffic.ReferrerCount
	for rows.Next() {
		var r traffic.ReferrerCount
		if err := rows.Scan(&r.Referrer, &r.Count, &r.Uniques); err != nil {
			return nil, fmt.Errorf("scan referrer row: %w", err)
		}
		referrers = append(referrers, r)
	}
	return referrers, rows.Err()
}

// ReferrerSeries sums referral traffic per day across the window, in date
// order. A non-empty pattern keeps only referrers containing it.
func (s *TrafficStore) ReferrerSeries(ctx context.Context, repo, pattern string, since, until time.Time) ([]traffic.DailyView, error) {
	const query = `SELECT date, SUM(count) AS daily_views, SUM(uniques) AS daily_uniques, MAX(timestamp) AS last_update
        FROM referrers
        WHERE repo = $1 AND date >= $2 AND date <= $3
          AND ($4 = '' OR referrer ILIKE '%' || $4 || '%')
        GROUP BY date
        ORDER BY date`
	return s.queryViews(ctx, repo, query, repo, since, until, pattern)
}

// CurrentTotals returns the latest rolling totals for one repository. The
// bool reports whether the repository has any traffic data at all.
func (s *TrafficStore) CurrentTotals(ctx context.Context, repo string) (traffic.Totals, bool, error) {
	const query = `SELECT count, uniques, timestamp FROM current_totals WHERE repo = $1`

	totals := traffic.Totals{Repo: repo}
	err := s.pool.QueryRow(ctx, query, repo).Scan(&totals.Count, &totals.Uniques, &totals.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return traffic.Totals{}, false, nil
	}
	if err != nil {
		return traffic.Totals{}, false, fmt.Errorf("read current totals: %w", err)
	}
	return totals, true, nil
}

// Repos lists every repository present in the traffic store.
func (s *TrafficStore) Repos(ctx context.Context) ([]traffic.TrackedRepo, error) {
	const query = `SELECT repo, MAX(timestamp) AS last_update
        FROM current_totals GROUP BY repo ORDER BY repo`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list traffic repos: %w", err)
	}
	defer rows.Close()

	var repos []traffic.TrackedRepo
	for rows.Next() {
		var r traffic.TrackedRepo
		if err := rows.Scan(&r.Repo, &r.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan traffic repo: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
