package traffic

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/go-github/v61/github"
)

const listPerPage = 100

// GitHubOption configures a GitHubCollector.
type GitHubOption func(*GitHubCollector)

// WithCollectorLogger overrides the logger used to report degraded fetches.
func WithCollectorLogger(logger *log.Logger) GitHubOption {
	return func(c *GitHubCollector) {
		c.logger = logger
	}
}

// WithClock overrides the sample clock.
func WithClock(now func() time.Time) GitHubOption {
	return func(c *GitHubCollector) {
		c.now = now
	}
}

// GitHubCollector fetches traffic data through the GitHub API. Traffic
// endpoints require push access to the repository.
type GitHubCollector struct {
	client *github.Client
	logger *log.Logger
	now    func() time.Time
}

// NewGitHubCollector constructs a GitHubCollector.
func NewGitHubCollector(client *github.Client, opts ...GitHubOption) *GitHubCollector {
	c := &GitHubCollector{
		client: client,
		logger: log.New(log.Writer(), "[traffic] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectTraffic fetches views, popular paths, and referrers for one
// repository. A views failure is fatal; path and referrer failures degrade
// to empty lists so a partial sample still lands.
func (c *GitHubCollector) CollectTraffic(ctx context.Context, repo string) (Sample, error) {
	owner, name, ok := splitRepo(repo)
	if !ok {
		return Sample{}, fmt.Errorf("invalid repository %q, want owner/name", repo)
	}

	views, _, err := c.client.Repositories.ListTrafficViews(ctx, owner, name, &github.TrafficBreakdownOptions{Per: "day"})
	if err != nil {
		return Sample{}, fmt.Errorf("traffic views for %s: %w", repo, err)
	}

	fetchedAt := c.now()
	sample := Sample{
		Repo:      repo,
		FetchedAt: fetchedAt,
		Totals: Totals{
			Repo:      repo,
			Count:     views.GetCount(),
			Uniques:   views.GetUniques(),
			Timestamp: fetchedAt,
		},
	}
	for _, day := range views.Views {
		ts := day.GetTimestamp().Time
		sample.Daily = append(sample.Daily, DailyView{
			Repo:      repo,
			Date:      time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Count:     day.GetCount(),
			Uniques:   day.GetUniques(),
			Timestamp: ts,
		})
	}

	paths, _, err := c.client.Repositories.ListTrafficPaths(ctx, owner, name)
	if err != nil {
		c.logger.Printf("could not fetch popular paths for %s: %v", repo, err)
	}
	for _, p := range paths {
		sample.Paths = append(sample.Paths, PathCount{
			Path:    p.GetPath(),
			Title:   p.GetTitle(),
			Count:   p.GetCount(),
			Uniques: p.GetUniques(),
		})
	}

	referrers, _, err := c.client.Repositories.ListTrafficReferrers(ctx, owner, name)
	if err != nil {
		c.logger.Printf("could not fetch referrers for %s: %v", repo, err)
	}
	for _, r := range referrers {
		sample.Referrers = append(sample.Referrers, ReferrerCount{
			Referrer: r.GetReferrer(),
			Count:    r.GetCount(),
			Uniques:  r.GetUniques(),
		})
	}

	return sample, nil
}

// AccessibleRepos lists repositories the authenticated user has push access
// to, the set whose traffic endpoints will answer.
func (c *GitHubCollector) AccessibleRepos(ctx context.Context) ([]string, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,collaborator,organization_member",
		ListOptions: github.ListOptions{PerPage: listPerPage},
	}

	var repos []string
	for {
		page, resp, err := c.client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
		for _, repo := range page {
			if repo.GetPermissions()["push"] {
				repos = append(repos, repo.GetFullName())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

func splitRepo(repo string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(repo, "/")
	return owner, name, ok && owner != "" && name != "" && !strings.Contains(name, "/")
}
