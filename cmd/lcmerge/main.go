// Command lcmerge combines the per-detector light curves of each observation
// into one background-subtracted light curve per extraction geometry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banshee-data/lcmerge/internal/config"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

// errUnitsFailed makes the process exit non-zero when a run finished but at
// least one unit failed. Skips alone exit zero.
var errUnitsFailed = errors.New("one or more units failed")

type rootOptions struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

// loadConfig reads the batch configuration named by --config.
func (o *rootOptions) loadConfig() (*config.BatchConfig, error) {
	if o.configPath == "" {
		return nil, errors.New("--config is required")
	}
	return config.LoadBatchConfig(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "lcmerge",
		Short: "Combine paired-detector light curves and subtract background",
		Long: `lcmerge joins the detector A and B light curves extracted for each
observation and geometry, adds them, and subtracts the area-scaled background.

Runs are idempotent: artifacts that already exist are never recomputed, so
lcmerge combine can be repeated as more extractions finish.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zcfg := zap.NewProductionConfig()
			zcfg.Encoding = "console"
			zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			if opts.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			sugar := logger.Sugar()
			monitoring.SetLogger(sugar.Infof)
			if opts.verbose {
				monitoring.SetDebugLogger(sugar.Debugf)
			} else {
				monitoring.SetDebugLogger(nil)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Batch configuration file (.json, .yaml or .yml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newCombineCmd(opts),
		newPairsCmd(opts),
		newScaleCmd(opts),
		newRunsCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lcmerge:", err)
		os.Exit(1)
	}
}
