package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kkanellis/MLOS/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the sqlite storage schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLauncher()
		if err != nil {
			return err
		}
		if l.cfg.Storage.Type != "sqlite" {
			return fmt.Errorf("migrate needs sqlite storage, config has %q", l.cfg.Storage.Type)
		}
		store, err := storage.OpenSQLite(cmd.Context(), l.cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		version, dirty, err := store.SchemaVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (dirty: %t)\n", l.cfg.Storage.Path, version, dirty)
		return nil
	},
}
