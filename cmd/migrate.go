package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mentorlink/internal/app/db"
	"mentorlink/internal/configs"
	"mentorlink/internal/pkg/logx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreDriver != configs.DriverPostgres {
			return fmt.Errorf("migrations only apply to the %s store driver", configs.DriverPostgres)
		}

		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseDSN, true)
		if err != nil {
			return err
		}
		defer pool.Close()

		logx.Info("Database is up to date.")
		return nil
	},
}
