package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Long:  "Retrieve and decrypt a memory. Bumps its access count.",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	item, err := mgr.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if item == nil {
		fmt.Println("null")
		return
	}

	b, _ := json.MarshalIndent(item, "", "  ")
	fmt.Println(string(b))
}
