package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v61/github"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rossturk/github-traffic-grabber/internal/api"
	"github.com/rossturk/github-traffic-grabber/internal/collector"
	"github.com/rossturk/github-traffic-grabber/internal/config"
	"github.com/rossturk/github-traffic-grabber/internal/domain"
	"github.com/rossturk/github-traffic-grabber/internal/persistence/memory"
	"github.com/rossturk/github-traffic-grabber/internal/persistence/postgres"
	"github.com/rossturk/github-traffic-grabber/internal/report"
	"github.com/rossturk/github-traffic-grabber/internal/scheduler"
	"github.com/rossturk/github-traffic-grabber/internal/traffic"
	httptransport "github.com/rossturk/github-traffic-grabber/internal/transport/http"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "actionusage",
		Short: "Track which GitHub repositories use a GitHub Action",
		Long: `actionusage discovers repositories using a GitHub Action through code
search, reconciles the findings against PostgreSQL state, and reports on
adoption, churn, versions, and languages over time.`,
	}

	rootCmd.AddCommand(
		initCmd(),
		updateCmd(),
		summaryCmd(),
		listCmd(),
		actionsCmd(),
		exportCmd(),
		versionsCmd(),
		languagesCmd(),
		reposCmd(),
		timelineCmd(),
		recentCmd(),
		daemonCmd(),
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
		Short: "Create the usage tracking schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewStore(pool).Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Usage tracking schema ready.")
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "update <action>",
		Short: "Search GitHub and reconcile usage data for an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()

			client, err := newGitHubClient(cfg)
			if err != nil {
				return err
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := postgres.NewStore(pool)
			if err := store.Init(ctx); err != nil {
				return err
			}

			coll := collector.New(client,
				collector.WithRateLimit(cfg.SearchRate),
				collector.WithPerPage(cfg.SearchPerPage))

			if dryRun {
				return dryRunUpdate(ctx, cmd.OutOrStdout(), coll, store, args[0])
			}

			tracker := domain.NewTracker(coll, store)
			stats, err := tracker.Reconcile(ctx, args[0])
			if err != nil {
				return err
			}
			report.WriteRunStats(cmd.OutOrStdout(), args[0], stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and report the run without writing to the database")
	return cmd
}

// dryRunUpdate runs a full reconciliation against an in-memory copy of the
// stored state, so the collection and planning paths execute for real while
// the database stays untouched.
func dryRunUpdate(ctx context.Context, out io.Writer, coll domain.Collector, store *postgres.Store, action string) error {
	records, err := store.Records(ctx, action, postgres.StateAll)
	if err != nil {
		return err
	}
	scratch := memory.NewStore()
	scratch.Seed(records)

	tracker := domain.NewTracker(coll, scratch)
	stats, err := tracker.Reconcile(ctx, action)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Dry run: no changes were written.")
	report.WriteRunStats(out, action, stats)
	return nil
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [action]",
		Short: "Show usage summaries, for one action or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := postgres.NewStore(pool)

			if len(args) == 1 {
				return writeActionSummary(ctx, out, store, args[0])
			}

			actions, err := store.TrackedActions(ctx)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				fmt.Fprintln(out, "No actions currently tracked.")
				return nil
			}
			for _, action := range actions {
				if err := writeActionSummary(ctx, out, store, action.ActionName); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// writeActionSummary prints one action's headline numbers followed by its
// versions in use and top repositories.
func writeActionSummary(ctx context.Context, out io.Writer, store *postgres.Store, action string) error {
	summary, err := store.Summarize(ctx, action)
	if err != nil {
		return err
	}
	versions, err := store.VersionBreakdown(ctx, action)
	if err != nil {
		return err
	}
	top, err := store.TopRepos(ctx, action, 5, false)
	if err != nil {
		return err
	}
	report.WriteSummary(out, summary)
	report.WriteSummaryDetail(out, versions, top)
	return nil
}

func listCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list <action>",
		Short: "List repositories and workflows using an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := postgres.StateFilter(state)
			switch filter {
			case postgres.StateActive, postgres.StateInactive, postgres.StateAll:
			default:
				return fmt.Errorf("unknown state %q, want active, inactive, or all", state)
			}

			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := postgres.NewStore(pool).Records(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			report.WriteRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "active", "Filter by state: active, inactive, or all.")
	return cmd
}

func actionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List every tracked action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			actions, err := postgres.NewStore(pool).TrackedActions(cmd.Context())
			if err != nil {
				return err
			}
			report.WriteActions(cmd.OutOrStdout(), actions)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [action]",
		Short: "Export a detailed usage report to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := postgres.NewStore(pool)

			var records []domain.UsageRecord
			if len(args) == 1 {
				records, err = store.Records(ctx, args[0], postgres.StateAll)
			} else {
				records, err = store.AllRecords(ctx)
			}
			if err != nil {
				return err
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create report file: %w", err)
			}
			defer file.Close()

			report.WriteDetailedReport(file, records, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "Report exported to: %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "action_usage_report.txt", "Destination file for the report.")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <action>",
		Short: "Show the pinned-version distribution across active repos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			versions, err := postgres.NewStore(pool).VersionBreakdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report.WriteVersions(cmd.OutOrStdout(), versions)
			return nil
		},
	}
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages <action>",
		Short: "Show the language distribution across active repos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			languages, err := postgres.NewStore(pool).LanguageBreakdown(cmd.Context(), args[0], 15)
			if err != nil {
				return err
			}
			report.WriteLanguages(cmd.OutOrStdout(), languages)
			return nil
		},
	}
}

func reposCmd() *cobra.Command {
	var limit int
	var includeInactive bool

	cmd := &cobra.Command{
		Use:   "repos <action>",
		Short: "Show top repositories by stars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			repos, err := postgres.NewStore(pool).TopRepos(cmd.Context(), args[0], limit, includeInactive)
			if err != nil {
				return err
			}
			report.WriteRepos(cmd.OutOrStdout(), repos, includeInactive)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of repositories to show.")
	cmd.Flags().BoolVar(&includeInactive, "all", false, "Include repositories no longer using the action.")
	return cmd
}

func timelineCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "timeline <action>",
		Short: "Show the adoption timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			until := time.Now().UTC()
			since := until.AddDate(0, 0, -days)
			points, err := postgres.NewStore(pool).Timeline(cmd.Context(), args[0], since, until)
			if err != nil {
				return err
			}
			report.WriteTimeline(cmd.OutOrStdout(), days, points)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Length of the window in days.")
	return cmd
}

func recentCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "recent <action>",
		Short: "Show recent adopters and churn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			since := time.Now().UTC().AddDate(0, 0, -days)
			activity, err := postgres.NewStore(pool).RecentActivity(cmd.Context(), args[0], since)
			if err != nil {
				return err
			}
			report.WriteActivity(cmd.OutOrStdout(), days, activity)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Length of the window in days.")
	return cmd
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run continuous reconciliation with an HTTP API and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if len(cfg.TrackedActions) == 0 {
				return errors.New("TRACKED_ACTIONS environment variable not set")
			}
			client, err := newGitHubClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := postgres.NewStore(pool)
			if err := store.Init(ctx); err != nil {
				return err
			}
			trafficStore := postgres.NewTrafficStore(pool)
			if err := trafficStore.Init(ctx); err != nil {
				return err
			}

			coll := collector.New(client,
				collector.WithRateLimit(cfg.SearchRate),
				collector.WithPerPage(cfg.SearchPerPage))
			tracker := domain.NewTracker(coll, store)
			sched := scheduler.New(tracker, cfg.TrackedActions, cfg.ReconcileInterval)

			trafficService := traffic.NewService(traffic.NewGitHubCollector(client), trafficStore,
				traffic.WithRepos(cfg.TrafficRepos))
			sweeper := scheduler.NewTrafficSweeper(trafficService, cfg.TrafficInterval)

			handler := api.NewHandler(store)
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)
			mux.Handle("/metrics", promhttp.Handler())

			server := httptransport.NewServer(
				httptransport.ServerConfig{Address: cfg.HTTPAddress},
				httptransport.WithRequestLog(log.Default(), mux))

			go sched.Start(ctx)
			go sweeper.Start(ctx)
			go func() {
				log.Printf("api listening on %s", cfg.HTTPAddress)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("server error: %v", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			log.Println("daemon shutdown requested")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("server shutdown error: %v", err)
			}

			sched.Wait()
			sweeper.Wait()
			return nil
		},
	}
}
