package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/go-github/v61/github"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/rossturk/github-traffic-grabber/internal/config"
	"github.com/rossturk/github-traffic-grabber/internal/persistence/postgres"
	"github.com/rossturk/github-traffic-grabber/internal/report"
	"github.com/rossturk/github-traffic-grabber/internal/traffic"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trafficgrab",
		Short: "Collect and analyze GitHub repository traffic",
		Long: `trafficgrab captures the view counts, popular paths, and referring
sites GitHub exposes for repositories you can push to, and stores them in
PostgreSQL so traffic history outlives GitHub's fourteen-day window.`,
	}

	rootCmd.AddCommand(
		initCmd(),
		updateCmd(),
		reposCmd(),
		reportCmd(),
		referrersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

func newGitHubClient(cfg config.Config) (*github.Client, error) {
	if cfg.GitHubToken == "" {
		return nil, errors.New("GITHUB_TOKEN environment variable not set")
	}
	return github.NewClient(nil).WithAuthToken(cfg.GitHubToken), nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the traffic schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewTrafficStore(pool).Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Traffic schema ready.")
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	var repoList []string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Fetch and store current traffic data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			client, err := newGitHubClient(cfg)
			if err != nil {
				return err
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := postgres.NewTrafficStore(pool)
			if err := store.Init(ctx); err != nil {
				return err
			}
			service := traffic.NewService(traffic.NewGitHubCollector(client), store)

			repos := repoList
			if len(repos) == 0 {
				repos = cfg.TrafficRepos
			}
			if len(repos) == 0 {
				updated, err := service.UpdateAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Updated traffic data for %d repositories.\n", updated)
				return nil
			}

			for _, repo := range repos {
				sample, err := service.Update(ctx, repo)
				if err != nil {
					return err
				}
				recent, err := store.RecentViews(ctx, repo, 14)
				if err != nil {
					return err
				}
				report.WriteTrafficUpdate(out, sample, recent)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&repoList, "repos", nil, "Repositories to update (owner/repo), overriding TRAFFIC_REPOS.")
	return cmd
}

func reposCmd() *cobra.Command {
	var tracked bool

	cmd := &cobra.Command{
		Use:   "repos",
		Short: "List repositories available for traffic tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if tracked {
				pool, err := openPool(ctx, cfg)
				if err != nil {
					return err
				}
				defer pool.Close()

				repos, err := postgres.NewTrafficStore(pool).Repos(ctx)
				if err != nil {
					return err
				}
				report.WriteTrackedRepos(out, repos)
				return nil
			}

			client, err := newGitHubClient(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Fetching your accessible repositories...")
			repos, err := traffic.NewGitHubCollector(client).AccessibleRepos(ctx)
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Fprintln(out, "No repositories found with push access.")
				return nil
			}
			fmt.Fprintln(out, "\nRepositories with traffic view access:")
			for _, repo := range repos {
				fmt.Fprintf(out, "  - %s\n", repo)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&tracked, "tracked", false, "List repositories already in the traffic store instead.")
	return cmd
}

func reportCmd() *cobra.Command {
	var repo string
	var days int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show stored traffic, for one repository or across all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := postgres.NewTrafficStore(pool)

			if repo == "" {
				repos, err := store.Repos(ctx)
				if err != nil {
					return err
				}
				totals := make([]traffic.Totals, 0, len(repos))
				for _, r := range repos {
					t, ok, err := store.CurrentTotals(ctx, r.Repo)
					if err != nil {
						return err
					}
					if ok {
						totals = append(totals, t)
					}
				}
				report.WriteRepoComparison(out, totals)
				return nil
			}

			until := time.Now().UTC()
			since := until.AddDate(0, 0, -days)

			views, err := store.DailyViews(ctx, repo, since, until)
			if err != nil {
				return err
			}
			report.WriteDailyTraffic(out, repo, days, views)

			paths, err := store.PopularPaths(ctx, repo, since, until, 10)
			if err != nil {
				return err
			}
			report.WritePopularPaths(out, repo, days, paths)

			referrers, err := store.TopReferrers(ctx, repo, "", since, until, 10)
			if err != nil {
				return err
			}
			report.WriteReferrers(out, repo, days, referrers)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository to report on (owner/repo); compares all when omitted.")
	cmd.Flags().IntVar(&days, "days", 14, "Length of the window in days.")
	return cmd
}

func referrersCmd() *cobra.Command {
	var repo, pattern string
	var days, top int

	cmd := &cobra.Command{
		Use:   "referrers",
		Short: "Analyze where repository traffic comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if repo == "" {
				return errors.New("--repo is required")
			}
			cfg := config.Load()
			ctx := cmd.Context()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := postgres.NewTrafficStore(pool)

			until := time.Now().UTC()
			since := until.AddDate(0, 0, -days)

			totals, err := store.TopReferrers(ctx, repo, pattern, since, until, top)
			if err != nil {
				return err
			}
			series, err := store.ReferrerSeries(ctx, repo, pattern, since, until)
			if err != nil {
				return err
			}
			report.WriteReferrerAnalytics(cmd.OutOrStdout(), repo, days, pattern, totals, series)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository to analyze (owner/repo).")
	cmd.Flags().IntVar(&days, "days", 30, "Length of the window in days.")
	cmd.Flags().StringVar(&pattern, "referrer", "", "Only count referrers containing this text.")
	cmd.Flags().IntVar(&top, "top", 10, "Number of referrers to show.")
	return cmd
}
