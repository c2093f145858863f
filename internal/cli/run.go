package cli

import (
	"github.com/spf13/cobra"

	"ceb-outage-alerts/internal/app"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform a single outage check and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CheckOptions{}
		if cmd.Flags().Changed("force") {
			opts.Force = &runForce
		}
		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", true, "Re-notify outages happening tomorrow even if already notified")
}
