package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eringen/postkit"
	"github.com/eringen/postkit/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := postkit.OpenDB(databasePath(cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.MigrateUp(db); err != nil {
				return err
			}
			st, err := migrations.CurrentStatus(db)
			if err != nil {
				return err
			}
			logger().WithField("version", st.Version).Info("schema is up to date")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := postkit.OpenDB(databasePath(cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			st, err := migrations.CurrentStatus(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d of %d, %d pending, dirty=%t\n", st.Version, st.Latest, st.Pending(), st.Dirty)
			return nil
		},
	})
	return cmd
}

func databasePath(cfg postkit.SiteConfig) string {
	if cfg.DatabasePath == "" {
		return "data/postkit.db"
	}
	return cfg.DatabasePath
}
