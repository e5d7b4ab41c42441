package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lcmerge/internal/ledger"
)

// ledgerFlag lets the history commands run without a batch config.
type ledgerFlag struct {
	path string
}

func (f *ledgerFlag) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.path, "ledger", "", "Ledger database (default from config)")
}

func (f *ledgerFlag) resolve(root *rootOptions) (string, error) {
	if f.path != "" {
		return f.path, nil
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return "", fmt.Errorf("need --ledger or --config: %w", err)
	}
	return cfg.GetLedgerPath(), nil
}

func (f *ledgerFlag) open(root *rootOptions) (*ledger.DB, error) {
	path, err := f.resolve(root)
	if err != nil {
		return nil, err
	}
	return ledger.Open(path)
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	lf := &ledgerFlag{}
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded combine runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lf.open(root)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tVERSION\tPRODUCED\tSKIPPED\tFAILED")
			for _, r := range runs {
				dur := "running"
				if r.FinishedAt != nil {
					dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.RunID, r.StartedAt.Format(time.RFC3339), dur, r.Version, r.Produced, r.Skipped, r.Failed)
			}
			return tw.Flush()
		},
	}
	lf.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "List the outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lf.open(root)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.GetRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			outs, err := db.Outcomes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OBSID\tGEOMETRY\tSTAGE\tSTATUS\tDETAIL")
			for _, o := range outs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Observation, o.Key, o.Stage, o.Status, o.Detail)
			}
			return tw.Flush()
		},
	}

	stats := &cobra.Command{
		Use:   "stats <obsid>",
		Short: "Show the statistics of every final light curve of an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lf.open(root)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GEOMETRY\tN\tEXPOSURE_S\tMEAN\tSTD\tMIN\tMAX\tRMS_VAR_%\tSNR")
			for _, r := range rows {
				s := r.Summary
				fmt.Fprintf(tw, "%s\t%d\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.3g\t%.3g\n",
					r.Key, s.N, s.Exposure, s.Mean, s.Std, s.Min, s.Max, s.RMSVar, s.SNR)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(show, stats)
	return cmd
}
