package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			exitErr("rm", fmt.Errorf("no memory with id %s", args[0]))
		}
		exitErr("rm", err)
	}

	fmt.Printf("deleted %s\n", args[0])
}
