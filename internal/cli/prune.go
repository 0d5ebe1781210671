package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete memories past the retention horizon",
		Long:  "Delete non-permanent memories older than the configured retention period.",
		Run:   runPrune,
	}

	cmd.Flags().Int("days", 0, "Override retention days for this run")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	if days > 0 {
		mgr.SetRetentionDays(days)
	}

	removed, err := mgr.Prune(cmd.Context())
	if err != nil {
		exitErr("prune", err)
	}

	fmt.Printf("pruned %d memories older than %d days\n", removed, mgr.RetentionDays())
}
