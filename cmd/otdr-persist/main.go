package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fiberlab/otdr-persist/internal/config"
	"github.com/fiberlab/otdr-persist/internal/metrics"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/repo"
	"github.com/fiberlab/otdr-persist/internal/services"
	"github.com/fiberlab/otdr-persist/internal/source"
	"github.com/fiberlab/otdr-persist/internal/utils"
)

var (
	configPath string
	logLevel   string
	logJSON    bool

	historyFiberID string
	historyLimit   int

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "otdr-persist",
	Short: "Persist OTDR measurement results",
	Long: `otdr-persist saves the analysis currently loaded on the OTDR front panel
to the measurement results database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "otdr-persist %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var persistCmd = &cobra.Command{
	Use:   "persist",
	Short: "Save the current front panel session",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Saving OTDR results...")
		if err := runPersist(cmd.Context()); err != nil {
			fmt.Fprintf(out, "ERROR: %v\n", err)
			return err
		}
		fmt.Fprintln(out, "Database results saved.")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return utils.NewAppError(utils.OpMigrate, "apply migrations", err)
		}
		logger.Info("migrations complete", slog.String("driver", cfg.Storage.Driver))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions(ctx, historyFiberID, historyLimit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		printSessions(cmd.OutOrStdout(), sessions)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")

	historyCmd.Flags().StringVar(&historyFiberID, "fiber-id", "", "Only list sessions for this fiber ID")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions to list")

	rootCmd.AddCommand(persistCmd, migrateCmd, historyCmd, versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, utils.NewAppError(utils.OpConfig, "load config", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runPersist(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("failed to register metrics", slog.Any("error", err))
	}
	defer func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, prometheus.DefaultGatherer); err != nil {
			logger.Warn("metrics push failed", slog.Any("error", err))
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Storage.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return utils.NewAppError(utils.OpMigrate, "apply migrations", err)
		}
	}

	persister := services.NewPersister(logger, newLoader(cfg), store, nil)
	return persister.PersistCurrentSession(ctx)
}

func newLoader(cfg *config.Config) source.Loader {
	if cfg.Source.Kind == "frontpanel" {
		return repo.NewFrontPanelClient(cfg.Source.BaseURL, cfg.Source.AnalysisPath, cfg.Source.Timeout)
	}
	return repo.NewSnapshotFile(cfg.Source.Path)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repo.SQLStore, error) {
	store, err := repo.OpenSQLStore(ctx, repo.Dialect(cfg.Storage.Driver), cfg.Storage.DSN, logger)
	if err != nil {
		return nil, utils.NewAppError(utils.OpStorage, "open results database", err)
	}
	return store, nil
}

func printSessions(w io.Writer, sessions []models.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{
		"Header", "Fiber ID", "Created (UTC)", "Instrument", "Length\n(km)",
		"Signatures", "Attenuation", "Mode Field", "Length",
	})
	for _, s := range sessions {
		length := "-"
		if s.ReportedLength != nil {
			length = fmt.Sprintf("%.4f", *s.ReportedLength)
		}
		table.Append([]string{
			strconv.FormatInt(s.HeaderID, 10),
			s.FiberIDString,
			s.DateCreated.UTC().Format(time.RFC3339),
			s.Instrument,
			length,
			strconv.Itoa(s.ResultCounts[models.KindSignature]),
			strconv.Itoa(s.ResultCounts[models.KindAttenuation]),
			strconv.Itoa(s.ResultCounts[models.KindModeField]),
			strconv.Itoa(s.ResultCounts[models.KindLength]),
		})
	}
	table.Render()
}
