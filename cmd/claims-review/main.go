package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/events"
	kafkaevents "github.com/joseph-ayodele/claims-review/internal/events/kafka"
	"github.com/joseph-ayodele/claims-review/internal/preview"
	"github.com/joseph-ayodele/claims-review/internal/records"
)

// app carries the collaborators every subcommand shares.
type app struct {
	cfg       *common.Config
	logger    *slog.Logger
	store     *records.FileStore
	publisher events.Publisher
	closers   []func() error
}

func (a *app) extractor() *preview.Extractor {
	return preview.NewExtractor(preview.Config{
		Pdftoppm: a.cfg.Preview.Pdftoppm,
		DPI:      a.cfg.Preview.DPI,
		MaxWidth: a.cfg.Preview.MaxWidth,
		Timeout:  a.cfg.Preview.Timeout,
	}, a.logger)
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		dataDir string
		verbose bool
	)

	root := &cobra.Command{
		Use:           "claims-review",
		Short:         "Inspect, correct and commit extracted claim records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if dataDir != "" {
				if err := os.Setenv("REVIEW_DATA_DIR", dataDir); err != nil {
					return err
				}
			}
			a.cfg = common.LoadConfig()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			// Without --verbose only warnings reach stderr, so command output stays pipeable.
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			if verbose {
				a.logger = common.NewLogger(a.cfg.Log)
			}
			slog.SetDefault(a.logger)

			store, err := records.NewFileStore(records.DirsFromConfig(a.cfg.Queue), a.logger)
			if err != nil {
				return err
			}
			a.store = store
			a.publisher = events.Nop{}
			if len(a.cfg.Events.Brokers) > 0 {
				kp := kafkaevents.NewPublisher(a.cfg.Events.Brokers, a.cfg.Events.Topic, a.logger)
				a.publisher = kp
				a.closers = append(a.closers, kp.Close)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "root of the fails/output/originals/pdfs layout (overrides REVIEW_DATA_DIR)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at the configured LOG_LEVEL instead of warnings only")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCheckCmd(a),
		newCommitCmd(a),
		newRenderCmd(a),
		newExportCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}
