package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the current context state",
		Long:  "Show the fused context snapshot, with the short-term ring seeded from the most recent short-term memories.",
		Run:   runContext,
	}

	cmd.Flags().String("task", "", "What you are working on right now")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	task, _ := cmd.Flags().GetString("task")

	cfg := loadConfig()
	obs := newObserver(cmd)

	eng := fusion.NewEngine(cfg.User.UserID, obs)
	if task != "" {
		eng.SetCurrentTask(task)
	}

	mgr, err := openManager(cfg, obs, eng)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	// Seed the ring oldest-first so eviction order matches creation order.
	recent, err := mgr.Search(cmd.Context(), storage.Query{
		MemoryType: types.MemoryShortTerm,
		Limit:      fusion.ShortTermCapacity,
		SortBy:     storage.SortCreatedAt,
		SortOrder:  "desc",
	})
	if err != nil {
		exitErr("context", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		eng.PushShortTerm(*recent[i])
	}

	state := eng.Current()
	b, _ := json.MarshalIndent(state, "", "  ")
	fmt.Println(string(b))
}
