package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docrag/internal/db"
)

func migrateCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != "postgres" {
				return fmt.Errorf("migrate requires STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
			}
			drv, err := db.Open(cmd.Context(), cfg.DBURL)
			if err != nil {
				return err
			}
			defer drv.Close()
			if err := db.Migrate(cmd.Context(), drv); err != nil {
				return err
			}
			logrus.Info("migration complete")
			return nil
		},
	}
}
