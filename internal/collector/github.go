// Package collector takes usage censuses against the GitHub code search,
// contents, and repository APIs. It owns pagination, pacing, and rate limit
// recovery; the reconciliation engine only ever sees finished snapshots.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v61/github"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

const defaultPerPage = 100

// Option configures optional behaviour for the Collector.
type Option func(*Collector)

// WithLogger overrides the logger used to report census progress.
func WithLogger(logger *log.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithRateLimit paces API calls at the given requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Collector) {
		c.bucket = NewTokenBucket(rps, 0.10)
	}
}

// WithPerPage overrides the search page size, mainly for tests.
func WithPerPage(perPage int) Option {
	return func(c *Collector) {
		c.perPage = perPage
	}
}

// Collector produces usage snapshots for actions. Safe for concurrent use.
type Collector struct {
	client  *github.Client
	logger  *log.Logger
	bucket  *TokenBucket
	perPage int
}

// New constructs a Collector around an authenticated GitHub client.
func New(client *github.Client, opts ...Option) *Collector {
	c := &Collector{
		client:  client,
		logger:  log.New(log.Writer(), "[collector] ", log.LstdFlags),
		perPage: defaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectSnapshot runs the full census for one action: every page of every
// search query phrasing, deduplicated, then enriched with the pinned version
// and repository metadata. Enrichment failures degrade single fields and are
// never fatal. The returned snapshot is marked incomplete when any search
// page could not be fetched; it errors only when the census produced nothing
// at all.
func (c *Collector) CollectSnapshot(ctx context.Context, action string) (domain.Snapshot, error) {
	if action == "" {
		return domain.Snapshot{}, domain.ErrActionRequired
	}

	started := time.Now()
	hits, complete, err := c.search(ctx, action)
	if err != nil {
		return domain.Snapshot{}, err
	}

	occurrences := domain.NormalizeHits(hits)
	c.enrich(ctx, action, occurrences)

	recordCensus(action, len(occurrences), started)
	c.logger.Printf("census for %s: %d raw hits, %d distinct usages, complete=%t", action, len(hits), len(occurrences), complete)
	return domain.Snapshot{Occurrences: occurrences, Complete: complete}, nil
}

// searchQueries returns the query phrasings used to find references to the
// action. Quoting changes what the search index matches, so all three run
// every census and the normalizer folds the overlap.
func searchQueries(action string) []string {
	return []string{
		fmt.Sprintf(`uses: "%s@" path:.github/workflows`, action),
		fmt.Sprintf(`uses: %s path:.github/workflows`, action),
		fmt.Sprintf(`uses: "%s" path:.github/workflows`, action),
	}
}

func (c *Collector) search(ctx context.Context, action string) ([]domain.RawHit, bool, error) {
	var hits []domain.RawHit
	complete := true
	pagesFetched := 0
	var firstErr error

	for _, query := range searchQueries(action) {
		opts := &github.SearchOptions{
			Sort:        "indexed",
			ListOptions: github.ListOptions{PerPage: c.perPage},
		}
		for {
			result, resp, err := c.searchPage(ctx, query, opts)
			if err != nil {
				complete = false
				if firstErr == nil {
					firstErr = err
				}
				recordSearchPage("error")
				c.logger.Printf("search page failed (query=%q page=%d): %v", query, opts.Page, err)
				break
			}
			pagesFetched++
			recordSearchPage("ok")

			for _, item := range result.CodeResults {
				repo := item.GetRepository()
				hits = append(hits, domain.RawHit{
					RepoFullName: repo.GetFullName(),
					RepoOwner:    repo.GetOwner().GetLogin(),
					RepoName:     repo.GetName(),
					WorkflowPath: item.GetPath(),
					WorkflowFile: path.Base(item.GetPath()),
				})
			}

			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}

	if pagesFetched == 0 && firstErr != nil {
		return nil, false, fmt.Errorf("code search for %s: %w", action, firstErr)
	}
	return hits, complete, nil
}

func (c *Collector) searchPage(ctx context.Context, query string, opts *github.SearchOptions) (*github.CodeSearchResult, *github.Response, error) {
	var result *github.CodeSearchResult
	var response *github.Response
	err := c.call(ctx, func() error {
		res, resp, err := c.client.Search.Code(ctx, query, opts)
		if err != nil {
			return err
		}
		result, response = res, resp
		return nil
	})
	return result, response, err
}

// enrich attaches the pinned version and repository metadata to each
// occurrence in place. Repository details are fetched once per repository
// even when several workflow files reference the action.
func (c *Collector) enrich(ctx context.Context, action string, occurrences map[domain.Key]domain.Occurrence) {
	repoCache := make(map[string]*github.Repository)

	for key, occ := range occurrences {
		content, err := c.fileContent(ctx, occ.RepoFullName, occ.WorkflowPath)
		if err != nil {
			recordMetadataMiss("content")
			c.logger.Printf("workflow content unavailable for %s: %v", key, err)
		} else if version, ok := ExtractVersion(content, action); ok {
			occ.Version = version
		}

		repo, cached := repoCache[occ.RepoFullName]
		if !cached {
			repo, err = c.repoDetails(ctx, occ.RepoFullName)
			if err != nil {
				recordMetadataMiss("repository")
				c.logger.Printf("repository details unavailable for %s: %v", occ.RepoFullName, err)
				repo = nil
			}
			repoCache[occ.RepoFullName] = repo
		}
		if repo != nil {
			occ.Stars = repo.GetStargazersCount()
			occ.IsFork = repo.GetFork()
			occ.IsPrivate = repo.GetPrivate()
			occ.DefaultBranch = repo.GetDefaultBranch()
			occ.Language = repo.GetLanguage()
			occ.Description = truncate(repo.GetDescription(), 500)
		}

		occurrences[key] = occ
	}
}

func (c *Collector) fileContent(ctx context.Context, repoFullName, filePath string) (string, error) {
	owner, name, ok := strings.Cut(repoFullName, "/")
	if !ok {
		return "", fmt.Errorf("malformed repository name %q", repoFullName)
	}

	var content string
	err := c.call(ctx, func() error {
		file, _, _, err := c.client.Repositories.GetContents(ctx, owner, name, filePath, nil)
		if err != nil {
			return err
		}
		if file == nil {
			return fmt.Errorf("%s is not a file", filePath)
		}
		decoded, err := file.GetContent()
		if err != nil {
			return backoff.Permanent(err)
		}
		content = decoded
		return nil
	})
	return content, err
}

func (c *Collector) repoDetails(ctx context.Context, repoFullName string) (*github.Repository, error) {
	owner, name, ok := strings.Cut(repoFullName, "/")
	if !ok {
		return nil, fmt.Errorf("malformed repository name %q", repoFullName)
	}

	var repo *github.Repository
	err := c.call(ctx, func() error {
		r, _, err := c.client.Repositories.Get(ctx, owner, name)
		if err != nil {
			return err
		}
		repo = r
		return nil
	})
	return repo, err
}

// call runs one API operation with pacing, rate limit recovery, and
// exponential backoff for transient failures. Primary rate limits sleep
// until the documented reset; secondary limits honour Retry-After. Client
// errors that a retry cannot fix are permanent.
func (c *Collector) call(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 5 * time.Minute

	return backoff.Retry(func() error {
		if !c.bucket.Take(ctx) {
			return backoff.Permanent(ctx.Err())
		}

		err := op()
		if err == nil {
			return nil
		}

		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			delay := time.Until(rateErr.Rate.Reset.Time) + time.Second
			recordRateLimitWait()
			c.logger.Printf("rate limit exhausted; waiting %s for reset", delay.Round(time.Second))
			if !sleepCtx(ctx, delay) {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &abuseErr) {
			delay := abuseErr.GetRetryAfter()
			if delay <= 0 {
				delay = 30 * time.Second
			}
			recordRateLimitWait()
			c.logger.Printf("secondary rate limit; waiting %s", delay)
			if !sleepCtx(ctx, delay) {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil {
			switch ghErr.Response.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
				return backoff.Permanent(err)
			}
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Back off to a rune boundary so a multibyte character is never split.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
