package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lcmerge/internal/ledger"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	lf := &ledgerFlag{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the ledger schema version",
	}
	lf.register(cmd)

	// openRaw skips the automatic migration done by ledger.Open.
	openRaw := func() (*ledger.DB, error) {
		path, err := lf.resolve(root)
		if err != nil {
			return nil, err
		}
		return ledger.OpenNoMigrate(path)
	}
	printVersion := func(cmd *cobra.Command, db *ledger.DB) error {
		v, dirty, err := db.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %v)\n", v, dirty)
		if dirty {
			fmt.Fprintln(cmd.OutOrStdout(), "A migration failed part way. Inspect the database, then run: lcmerge migrate force <version>")
		}
		return nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openRaw()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openRaw()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openRaw()
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, db)
		},
	}
	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without migrating (recovery only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number %q", args[0])
			}
			db, err := openRaw()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.MigrateForce(v); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	cmd.AddCommand(up, down, status, force)
	return cmd
}
