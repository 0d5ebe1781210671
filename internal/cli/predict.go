package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/analysis"
	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Generate proactive suggestions",
		Long:  "Predict next actions and relevant memories from recent activity.",
		Run:   runPredict,
	}

	cmd.Flags().String("task", "", "What you are working on right now")
	cmd.Flags().IntP("limit", "l", 500, "Max memories to consider")

	RootCmd.AddCommand(cmd)
}

func runPredict(cmd *cobra.Command, args []string) {
	task, _ := cmd.Flags().GetString("task")
	limit, _ := cmd.Flags().GetInt("limit")

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

	found, err := mgr.Search(cmd.Context(), storage.Query{
		Limit:     limit,
		SortBy:    storage.SortLastAccessed,
		SortOrder: "desc",
	})
	if err != nil {
		exitErr("predict", err)
	}

	items := make([]types.MemoryItem, len(found))
	for i, item := range found {
		items[i] = *item
	}

	state := eng.Current()
	preds := analysis.NewPredictionEngine().Predict(items, &state, time.Now().UTC())
	if len(preds) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(preds, "", "  ")
	fmt.Println(string(b))
}
