// Package traffic tracks repository view statistics, popular content, and
// referring sites for repositories the token can see traffic for.
package traffic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrRepoRequired is returned when an operation is invoked without a
// repository name.
var ErrRepoRequired = errors.New("traffic: repository name required")

// DailyView is one day of view counts for a repository.
type DailyView struct {
	Repo      string    `json:"repo"`
	Date      time.Time `json:"date"`
	Count     int       `json:"count"`
	Uniques   int       `json:"uniques"`
	Timestamp time.Time `json:"timestamp"`
}

// Totals is the rolling fourteen-day total the views endpoint reports.
type Totals struct {
	Repo      string    `json:"repo"`
	Count     int       `json:"count"`
	Uniques   int       `json:"uniques"`
	Timestamp time.Time `json:"timestamp"`
}

// PathCount is one popular content path.
type PathCount struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Count   int    `json:"count"`
	Uniques int    `json:"uniques"`
}

// ReferrerCount is one referring site.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
	Uniques  int    `json:"uniques"`
}

// TrackedRepo is a repository present in the traffic store.
type TrackedRepo struct {
	Repo       string    `json:"repo"`
	LastUpdate time.Time `json:"last_update"`
}

// Sample is one fetch of a repository's traffic surface. Paths and
// Referrers may be empty when those endpoints failed; daily views and
// totals are always present.
type Sample struct {
	Repo      string
	FetchedAt time.Time
	Daily     []DailyView
	Totals    Totals
	Paths     []PathCount
	Referrers []ReferrerCount
}

// Collector fetches traffic data from the hosting platform.
type Collector interface {
	CollectTraffic(ctx context.Context, repo string) (Sample, error)
	AccessibleRepos(ctx context.Context) ([]string, error)
}

// Store persists traffic samples.
type Store interface {
	SaveSample(ctx context.Context, sample Sample) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the logger used to report update progress.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRepos pins sweeps to a fixed repository list instead of discovering
// every pushable repository.
func WithRepos(repos []string) Option {
	return func(s *Service) {
		s.repos = repos
	}
}

// Service orchestrates traffic collection and persistence.
type Service struct {
	collector Collector
	store     Store
	repos     []string
	logger    *log.Logger
}

// NewService constructs a Service.
func NewService(collector Collector, store Store, opts ...Option) *Service {
	s := &Service{
		collector: collector,
		store:     store,
		logger:    log.New(log.Writer(), "[traffic] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update fetches one repository's traffic and persists it.
func (s *Service) Update(ctx context.Context, repo string) (Sample, error) {
	if repo == "" {
		return Sample{}, ErrRepoRequired
	}

	sample, err := s.collector.CollectTraffic(ctx, repo)
	if err != nil {
		return Sample{}, fmt.Errorf("collect traffic for %s: %w", repo, err)
	}
	if err := s.store.SaveSample(ctx, sample); err != nil {
		return Sample{}, fmt.Errorf("save traffic for %s: %w", repo, err)
	}

	s.logger.Printf("updated %s: %d total views, %d uniques, %d daily points",
		repo, sample.Totals.Count, sample.Totals.Uniques, len(sample.Daily))
	return sample, nil
}

// UpdateAll sweeps the configured repositories, or every repository the
// token has push access to when none are configured. Failures are logged
// and skipped so one broken repository does not end the sweep.
func (s *Service) UpdateAll(ctx context.Context) (int, error) {
	repos := s.repos
	if len(repos) == 0 {
		var err error
		repos, err = s.collector.AccessibleRepos(ctx)
		if err != nil {
			return 0, fmt.Errorf("list accessible repos: %w", err)
		}
	}

	var updated, failed int
	for _, repo := range repos {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if _, err := s.Update(ctx, repo); err != nil {
			s.logger.Printf("skipping %s: %v", repo, err)
			failed++
			continue
		}
		updated++
	}
	if failed > 0 {
		return updated, fmt.Errorf("update traffic: %d of %d repositories failed", failed, len(repos))
	}
	return updated, nil
}
