package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rsidesk/internal/broker"
	"rsidesk/internal/config"
	"rsidesk/internal/dataflows"
	"rsidesk/internal/export"
	"rsidesk/internal/ledger"
	"rsidesk/internal/models"
	"rsidesk/internal/portfolio"
	"rsidesk/internal/review"
	"rsidesk/internal/schedule"
	"rsidesk/internal/signal"
	"rsidesk/internal/storage/sqlite"
	"rsidesk/internal/universe"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var (
		strategyPath string
		debug        bool
	)

	rootCmd := &cobra.Command{
		Use:   "rsidesk",
		Short: "rsidesk - RSI trading desk assistant",
		Long: `rsidesk is a single-operator trading assistant. It refreshes daily RSI
signals for a symbol universe, proposes entries and exits against the local
portfolio ledger, and submits only what the operator approves.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "", "Strategy config file path (JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	app := &app{strategyPath: &strategyPath, debug: &debug}

	rootCmd.AddCommand(newRefreshCmd(app))
	rootCmd.AddCommand(newReviewCmd(app))
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newReconcileCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// app holds the lazily-built dependency set shared by all commands.
type app struct {
	strategyPath *string
	debug        *bool

	cfg   *config.Config
	log   *logrus.Entry
	store *sqlite.Store
}

func (a *app) setup() error {
	level := logrus.InfoLevel
	if *a.debug {
		level = logrus.DebugLevel
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	a.log = logrus.NewEntry(logger)

	cfg, err := config.Load(*a.strategyPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) universe() (*universe.Universe, error) {
	return universe.Load(a.cfg.UniversePath)
}

func (a *app) broker() (*broker.Client, error) {
	return broker.New(a.cfg.BrokerBaseURL, a.cfg.BrokerKey, a.cfg.BrokerSecret)
}

func newRefreshCmd(a *app) *cobra.Command {
	var (
		dateStr  string
		backfill int
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch daily bars and rebuild the RSI snapshot set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()
			return runRefresh(cmd.Context(), a, dateStr, backfill)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "Snapshot date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().IntVar(&backfill, "backfill", 0, "Fetch this many days of history (first run or gap repair)")

	return cmd
}

func runRefresh(ctx context.Context, a *app, dateStr string, backfill int) error {
	asOf := time.Now()
	if dateStr != "" {
		parsed, err := time.Parse(models.DateLayout, dateStr)
		if err != nil {
			return fmt.Errorf("invalid date %q, use YYYY-MM-DD", dateStr)
		}
		asOf = parsed
	}

	u, err := a.universe()
	if err != nil {
		return err
	}

	refresher := signal.NewRefresher(a.store, dataflows.NewYahooClient(), u, a.cfg.Strategy, a.log)
	result, err := refresher.Refresh(ctx, asOf, backfill)
	if err != nil {
		return err
	}

	date, snaps, err := a.store.LatestSnapshots(ctx)
	if err != nil {
		return err
	}
	if date != "" {
		exporter := export.NewExporter(a.cfg.DataDir)
		paths, err := exporter.WriteSnapshotArtifacts(date, snaps)
		if err != nil {
			return err
		}
		for _, p := range paths {
			a.log.WithField("file", p).Debug("snapshot artifact written")
		}
	}

	if days := a.cfg.Strategy.RetentionDays; days > 0 {
		if _, err := a.store.Cleanup(ctx, days); err != nil {
			a.log.WithError(err).Warn("retention cleanup failed")
		}
	}

	PrintRefreshResult(result)
	return nil
}

func newReviewCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run the daily review session against the latest snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()
			return runReview(cmd.Context(), a, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the session entry confirmation")

	return cmd
}

func runReview(ctx context.Context, a *app, skipConfirm bool) error {
	client, err := a.broker()
	if err != nil {
		return err
	}
	u, err := a.universe()
	if err != nil {
		return err
	}

	if !skipConfirm {
		ok, err := ConfirmSessionStart()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Session cancelled.")
			return nil
		}
	}

	reconciler := ledger.New(a.store, a.log)
	session := review.NewSession(
		a.store,
		client,
		dataflows.NewYahooClient(),
		reconciler,
		NewSurveySurface(),
		u.Sector,
		a.cfg.Strategy,
		a.log,
	)

	summary, err := session.Run(ctx)
	if err != nil {
		return err
	}
	PrintSessionSummary(summary)
	return nil
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Correct the local portfolio ledger to match broker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			client, err := a.broker()
			if err != nil {
				return err
			}
			syncer := portfolio.NewSyncer(a.store, client, a.log)
			report, err := syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}
			PrintSyncReport(report)
			return nil
		},
	}
}

func newPortfolioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show open positions and exposure",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			positions, err := a.store.Positions(cmd.Context())
			if err != nil {
				return err
			}

			// Latest snapshot closes give an indicative mark; positions
			// without a snapshot fall back to cost basis.
			prices := map[string]float64{}
			if _, snaps, err := a.store.LatestSnapshots(cmd.Context()); err == nil {
				for _, s := range snaps {
					prices[s.Symbol] = s.Price
				}
			}

			PrintPortfolio(positions, prices, a.cfg.Strategy)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit    int
		auditLog bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent trade records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			if auditLog {
				entries, err := a.store.TradeLogTail(cmd.Context(), limit)
				if err != nil {
					return err
				}
				PrintTradeLog(entries)
				return nil
			}

			trades, err := a.store.TradeHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			PrintTradeHistory(trades)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	cmd.Flags().BoolVar(&auditLog, "log", false, "Show the audit log instead of trade records")

	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve trades still in submitted state against the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			client, err := a.broker()
			if err != nil {
				return err
			}
			reconciler := ledger.New(a.store, a.log)
			resolved, err := reconciler.ResumeOpen(cmd.Context(), client.Result)
			if err != nil {
				return err
			}
			fmt.Printf("Resolved %d open trade(s).\n", resolved)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		spec     string
		backfill int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the signal refresh on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			daily := schedule.NewDaily(a.log)
			return daily.Start(cmd.Context(), spec, func(ctx context.Context, asOf time.Time) error {
				return runRefresh(ctx, a, asOf.Format(models.DateLayout), backfill)
			})
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "30 16 * * 1-5", "Cron expression for the refresh schedule")
	cmd.Flags().IntVar(&backfill, "backfill", 0, "Backfill days per scheduled run")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("rsidesk v1.0.0")
			fmt.Println("RSI trading desk assistant")
		},
	}
}
