package cmd

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docrag/services/ingest"
)

func sweepCMD() *cobra.Command {
	var dryRun bool

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run one orphan cleanup pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// Re-ingestion of reverted documents finishes before the command exits.
			dispatcher := ingest.NewDispatcher(a.pipeline, 1, cfg.IngestQueueSize)
			dispatcher.Start(cmd.Context())

			report, runErr := a.sweeper(dispatcher, dryRun).Run(cmd.Context())
			dispatcher.Stop()

			logrus.WithFields(logrus.Fields{
				"dry_run":        dryRun,
				"purged":         report.Purged,
				"left_deleting":  report.LeftDeleting,
				"reverted":       report.Reverted,
				"orphan_chunks":  report.OrphanChunks,
				"orphan_vectors": report.OrphanVectors,
				"orphan_blobs":   report.OrphanBlobs,
				"stuck_pending":  len(report.StuckPending),
			}).Info("sweep finished")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return runErr
		},
	}
	sweep.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without removing it")
	return sweep
}
