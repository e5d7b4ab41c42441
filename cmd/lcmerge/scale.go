package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/manifest"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

func newScaleCmd(root *rootOptions) *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Generate the pixel-area scale-factor manifest",
		Long: `scale computes the source and background pixel areas, and their ratio,
for every configured observation, detector, source radius and annulus, and
writes them to the manifest read by combine. Values are stored unrounded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.GetManifestPath()
			if output != "" {
				path = output
			}

			fsys := fsutil.OSFileSystem{}
			if fsys.Exists(path) && !force {
				return fmt.Errorf("manifest %s already exists (use --force to replace it)", path)
			}

			annuli, err := cfg.Annuli()
			if err != nil {
				return err
			}
			records, err := manifest.Generate(cfg.Observations, cfg.SrcRadii, annuli, cfg.GetPixelScale())
			if err != nil {
				return err
			}
			if err := manifest.Write(fsys, path, records); err != nil {
				return err
			}
			monitoring.Logf("wrote %d manifest records to %s", len(records), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Manifest path (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing manifest")
	return cmd
}
