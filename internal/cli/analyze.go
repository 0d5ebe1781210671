package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/analysis"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect patterns and anomalies",
		Long:  "Run pattern and anomaly detection over stored memories.",
		Run:   runAnalyze,
	}

	cmd.Flags().IntP("limit", "l", 1000, "Max memories to analyze")
	cmd.Flags().String("memory-type", "", "Restrict to one tier")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	memoryType, _ := cmd.Flags().GetString("memory-type")

	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	found, err := mgr.Search(cmd.Context(), storage.Query{
		MemoryType: types.MemoryType(memoryType),
		Limit:      limit,
		SortBy:     storage.SortCreatedAt,
		SortOrder:  "asc",
	})
	if err != nil {
		exitErr("analyze", err)
	}

	items := make([]types.MemoryItem, len(found))
	for i, item := range found {
		items[i] = *item
	}

	now := time.Now().UTC()
	out := struct {
		Analyzed  int                `json:"analyzed"`
		Patterns  []analysis.Pattern `json:"patterns"`
		Anomalies []analysis.Anomaly `json:"anomalies"`
	}{
		Analyzed:  len(items),
		Patterns:  analysis.NewPatternDetector().Detect(items),
		Anomalies: analysis.NewAnomalyDetector().Detect(items, now),
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
