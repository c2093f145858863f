package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ceb-outage-alerts/internal/app"
)

var pruneKeepDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived notifications older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneKeepDays <= 0 {
			return fmt.Errorf("--keep-days must be greater than zero")
		}

		opts := app.PruneOptions{
			OlderThan: time.Now().UTC().AddDate(0, 0, -pruneKeepDays),
		}

		return getApp().Prune(cmd.Context(), opts)
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeepDays, "keep-days", 180, "Retention window in days")
}
