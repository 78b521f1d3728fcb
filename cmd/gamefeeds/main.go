package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/api"
	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/controllers"
	"github.com/Ironcock/GameReleaseFetcher/internal/metrics"
	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/Ironcock/GameReleaseFetcher/internal/scheduler"
	"github.com/Ironcock/GameReleaseFetcher/internal/services/igdb"
	"github.com/Ironcock/GameReleaseFetcher/internal/services/rawg"
	"github.com/Ironcock/GameReleaseFetcher/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
)

// doctorLimit is the number of recent releases the doctor inspects
const doctorLimit = 20

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var monthly bool

	rootCmd := &cobra.Command{
		Use:   "gamefeeds",
		Short: "Generate curated PC game feeds from RAWG or IGDB",
		Long: `Generate curated PC game feeds from RAWG or IGDB.

Without a subcommand the daily document (NewReleases, Upcoming) is written
once. Use --monthly for the HallOfFame document.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.Flags(), monthly)
		},
	}

	rootCmd.PersistentFlags().String("source", "", "Catalog source: rawg or igdb (overrides SOURCE)")
	rootCmd.PersistentFlags().String("output-dir", "", "Directory for the generated documents (overrides OUTPUT_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.Flags().BoolVar(&monthly, "monthly", false, "Generate the monthly HallOfFame document instead of the daily one")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the scheduler and the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Flags())
			},
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Explain the filtering decisions for recent releases",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDoctor(cmd.Context(), cmd.Flags())
			},
		},
	)

	return rootCmd
}

// app holds the components shared by every command
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	db      *models.Database
	feeds   *controllers.FeedController
	doctor  *controllers.DoctorController

	shutdownTracing func(context.Context) error
}

func setup(flags *pflag.FlagSet) (*app, error) {
	// 1. Load configuration
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger and tracing
	logger := utils.NewLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{
		"source":     cfg.Source,
		"output_dir": cfg.OutputDir,
	}).Info("Configuration loaded")

	tp := utils.NewTracerProvider(logger)
	otel.SetTracerProvider(tp)

	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	// 3. Load filter policy
	policy := pipeline.DefaultPolicy()
	policy.RiskyMinAdded = cfg.RiskyMinAdded
	policy.ObscurityMinAdded = cfg.HallOfFameMinAdded
	policy, err = pipeline.LoadPolicy(cfg.FiltersFile, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to load filters: %w", err)
	}

	classifier, err := pipeline.NewSafetyClassifier(policy)
	if err != nil {
		return nil, fmt.Errorf("invalid filters: %w", err)
	}
	dedup := pipeline.NewDeduplicator(policy)
	logger.WithField("filters", cfg.FiltersFile).Debug("Filter policy loaded")

	// 4. Initialize catalog client
	var (
		source   pipeline.PageSource
		trailers pipeline.TrailerSource
		storeURL pipeline.StoreURLFunc
	)
	switch cfg.Source {
	case models.SourceIGDB:
		source = igdb.NewClient(cfg, logger)
		storeURL = pipeline.NewStoreResolver(nil).Resolve
	default:
		client := rawg.NewClient(cfg, logger)
		source = client
		trailers = client
		storeURL = pipeline.SiteStoreURL(cfg.RAWGSiteURL)
	}
	logger.WithField("source", cfg.Source).Info("Catalog client initialized")

	pager := pipeline.NewPager(source, pipeline.PagerOptions{
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Delay:    cfg.PageDelay,
	}, logger)

	// 5. Open run history. A locked database (another instance running)
	// only costs us the history.
	a := &app{
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics.New(),
		shutdownTracing: tp.Shutdown,
	}

	var runs controllers.RunStore
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to open run history, continuing without it")
	} else {
		a.db = db
		runs = db
	}

	// 6. Initialize controllers
	a.feeds = controllers.NewFeedController(cfg.Source, pager, classifier, dedup, storeURL, trailers, runs, a.metrics, logger)
	a.doctor = controllers.NewDoctorController(pager, classifier, dedup, logger)

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to shut down tracing")
	}
}

func runOnce(ctx context.Context, flags *pflag.FlagSet, monthly bool) error {
	a, err := setup(flags)
	if err != nil {
		return err
	}
	defer a.close()

	if monthly {
		err = a.feeds.PublishMonthly(ctx, a.cfg.MonthlyFile, a.cfg.TrailerHead)
	} else {
		err = a.feeds.PublishDaily(ctx, a.cfg.DailyFile)
	}

	// An upstream failure still leaves a written document behind
	if errors.Is(err, controllers.ErrPartialFeed) {
		a.logger.WithError(err).Warn("Upstream failed, published what was fetched")
		return nil
	}
	return err
}

func runDoctor(ctx context.Context, flags *pflag.FlagSet) error {
	a, err := setup(flags)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.doctor.Diagnose(ctx, time.Now(), doctorLimit)
	if err != nil {
		return err
	}
	return report.Write(os.Stdout)
}

func runServe(flags *pflag.FlagSet) error {
	a, err := setup(flags)
	if err != nil {
		return err
	}
	defer a.close()

	// The status endpoint and the prune job both need the history
	if a.db == nil {
		return fmt.Errorf("run history is unavailable at %s", a.cfg.DatabaseFile)
	}

	a.logger.Info("Starting gamefeeds server")

	// 7. Initialize scheduler
	sched := scheduler.NewScheduler(a.cfg, a.feeds, a.db, a.logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 8. Initialize HTTP server
	server := api.NewServer(a.cfg, a.db, a.metrics, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 9. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.logger.Info("gamefeeds is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			a.logger.WithError(err).Error("Error during server shutdown")
		}
	}

	a.logger.Info("gamefeeds stopped")
	return nil
}
