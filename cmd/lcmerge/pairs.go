package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/pairing"
	"github.com/banshee-data/lcmerge/internal/security"
)

func newPairsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs [obsid...]",
		Short: "Report the pairing state of every geometry without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			observations := cfg.Observations
			if len(args) > 0 {
				for _, obs := range args {
					if err := security.ValidateIdentifier(obs); err != nil {
						return fmt.Errorf("observation argument: %w", err)
					}
				}
				observations = args
			}

			m := newMatcher(fsutil.OSFileSystem{}, cfg)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OBSID\tGEOMETRY\tSTATE\tDETAIL")
			for _, obs := range observations {
				for res, err := range m.Pairs(cmd.Context(), obs) {
					if err != nil {
						return err
					}
					state, detail := pairState(res)
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", obs, res.Key, state, detail)
				}
			}
			return tw.Flush()
		},
	}
}

func pairState(res pairing.Result) (state, detail string) {
	switch {
	case res.Ready():
		return "ready", ""
	case errors.Is(res.Err, pairing.ErrUnmatchedPair):
		return "unmatched", res.Err.Error()
	default:
		return "incomplete", res.Err.Error()
	}
}
