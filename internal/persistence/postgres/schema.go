package postgres

import "context"

// Schema statements are idempotent so init can run on every start. The
// history table enforces one authoritative point per action and date;
// reruns on the same date upsert over the earlier point.
const usageSchema = `
CREATE TABLE IF NOT EXISTS action_usage (
    id SERIAL PRIMARY KEY,
    action_name TEXT NOT NULL,
    repo_full_name TEXT NOT NULL,
    repo_owner TEXT NOT NULL,
    repo_name TEXT NOT NULL,
    action_version TEXT,
    workflow_file TEXT,
    workflow_path TEXT,
    first_seen DATE NOT NULL,
    last_seen DATE NOT NULL,
    is_active BOOLEAN DEFAULT TRUE,
    stars INTEGER DEFAULT 0,
    is_fork BOOLEAN DEFAULT FALSE,
    is_private BOOLEAN DEFAULT FALSE,
    default_branch TEXT,
    language TEXT,
    description TEXT,
    created_at TIMESTAMP,
    updated_at TIMESTAMP,
    UNIQUE(action_name, repo_full_name, workflow_path)
);

CREATE INDEX IF NOT EXISTS idx_action_usage_action
    ON action_usage(action_name);
CREATE INDEX IF NOT EXISTS idx_action_usage_repo
    ON action_usage(repo_full_name);
CREATE INDEX IF NOT EXISTS idx_action_usage_active
    ON action_usage(is_active);
CREATE INDEX IF NOT EXISTS idx_action_usage_dates
    ON action_usage(first_seen, last_seen);

CREATE TABLE IF NOT EXISTS action_usage_history (
    id SERIAL PRIMARY KEY,
    action_name TEXT NOT NULL,
    date DATE NOT NULL,
    total_repos INTEGER NOT NULL,
    new_repos INTEGER NOT NULL,
    removed_repos INTEGER NOT NULL,
    active_repos INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    UNIQUE(action_name, date)
);

CREATE INDEX IF NOT EXISTS idx_action_usage_history_action
    ON action_usage_history(action_name);
CREATE INDEX IF NOT EXISTS idx_action_usage_history_date
    ON action_usage_history(date);
`

const trafficSchema = `
CREATE TABLE IF NOT EXISTS daily_views (
    repo TEXT NOT NULL,
    date DATE NOT NULL,
    count INTEGER NOT NULL,
    uniques INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (repo, date)
);

CREATE TABLE IF NOT EXISTS current_totals (
    repo TEXT PRIMARY KEY,
    count INTEGER NOT NULL,
    uniques INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS popular_paths (
    id SERIAL PRIMARY KEY,
    repo TEXT NOT NULL,
    date DATE NOT NULL,
    path TEXT NOT NULL,
    title TEXT,
    count INTEGER NOT NULL,
    uniques INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS referrers (
    id SERIAL PRIMARY KEY,
    repo TEXT NOT NULL,
    date DATE NOT NULL,
    referrer TEXT NOT NULL,
    count INTEGER NOT NULL,
    uniques INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_popular_paths_repo_date
    ON popular_paths(repo, date);
CREATE INDEX IF NOT EXISTS idx_referrers_repo_date
    ON referrers(repo, date);
`

// Init creates the usage tables when they do not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, usageSchema)
	return err
}

// Init creates the traffic tables when they do not exist yet.
func (s *TrafficStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, trafficSchema)
	return err
}
