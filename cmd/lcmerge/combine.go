package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lcmerge/internal/artifact"
	"github.com/banshee-data/lcmerge/internal/batch"
	"github.com/banshee-data/lcmerge/internal/completion"
	"github.com/banshee-data/lcmerge/internal/config"
	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/ledger"
	"github.com/banshee-data/lcmerge/internal/manifest"
	"github.com/banshee-data/lcmerge/internal/monitoring"
	"github.com/banshee-data/lcmerge/internal/pairing"
	"github.com/banshee-data/lcmerge/internal/watch"
)

func newCombineCmd(root *rootOptions) *cobra.Command {
	var (
		workers  int
		noLedger bool
		follow   bool
		debounce time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Add detector pairs and subtract scaled background",
		Long: `combine runs both passes over every configured observation. With --watch
it keeps running, repeating the passes whenever the product tree changes, until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = &workers
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			fsys := fsutil.OSFileSystem{}
			var rec batch.Recorder
			if !noLedger {
				if err := fsys.MkdirAll(cfg.GetOutputBase(), 0755); err != nil {
					return fmt.Errorf("create %s: %w", cfg.GetOutputBase(), err)
				}
				db, err := ledger.Open(cfg.GetLedgerPath())
				if err != nil {
					return err
				}
				defer db.Close()
				rec = db
			}

			if !follow {
				sum, err := combineOnce(cmd.Context(), fsys, cfg, rec)
				if err != nil {
					return err
				}
				if sum.Failed() > 0 {
					return fmt.Errorf("%w: %d of %d outcomes", errUnitsFailed, sum.Failed(), len(sum.Outcomes))
				}
				return nil
			}

			w, err := watch.New(cfg.GetProductsBase(), cfg.Observations)
			if err != nil {
				return err
			}
			w.Debounce = debounce
			w.Interval = interval
			monitoring.Logf("watching %s for new products", cfg.GetProductsBase())
			return w.Run(cmd.Context(), func(ctx context.Context) error {
				_, err := combineOnce(ctx, fsys, cfg, rec)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "Parallel workers (default from config, else half the CPUs)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the run in the ledger database")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "Keep running and repeat when products change")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a repeat in --watch mode")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Also repeat at this interval in --watch mode (0 disables)")
	return cmd
}

// combineOnce runs both passes. The manifest is reloaded each time since
// scale may have been run since the previous pass.
func combineOnce(ctx context.Context, fsys fsutil.FileSystem, cfg *config.BatchConfig, rec batch.Recorder) (*batch.Summary, error) {
	man, err := loadManifest(fsys, cfg.GetManifestPath())
	if err != nil {
		return nil, err
	}
	orch, err := batch.New(batch.Config{
		Matcher:  newMatcher(fsys, cfg),
		Inputs:   fsys,
		Store:    artifact.NewStore(fsys, cfg.GetOutputBase()),
		Manifest: man,
		Recorder: rec,
		Workers:  cfg.GetWorkers(),
		MultA:    cfg.GetMultA(),
		MultB:    cfg.GetMultB(),
	})
	if err != nil {
		return nil, err
	}

	sum, err := orch.Run(ctx, cfg.Observations)
	if sum != nil {
		sum.Log()
	}
	return sum, err
}

func newMatcher(fsys fsutil.FileSystem, cfg *config.BatchConfig) *pairing.Matcher {
	sentinel := &completion.LogSentinel{
		FS:       fsys,
		Name:     cfg.GetSentinelName(),
		Marker:   cfg.GetSuccessMarker(),
		MaxBytes: cfg.GetMaxSentinelBytes(),
	}
	return pairing.NewMatcher(pairing.NewDirSource(fsys, cfg.GetProductsBase()), sentinel)
}

// loadManifest returns nil when no manifest has been generated yet; every
// subtraction is then skipped as missing a scale factor.
func loadManifest(fsys fsutil.FileSystem, path string) (*manifest.Manifest, error) {
	man, err := manifest.Load(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		monitoring.Logf("no manifest at %s; background subtraction will be skipped", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	monitoring.Logf("loaded %d manifest records from %s", man.Len(), path)
	return man, nil
}
