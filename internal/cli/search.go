package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories",
		Long:  "Search memory content with optional tier, importance, tag, and date filters.",
		Run:   runSearch,
	}

	cmd.Flags().String("content-type", "", "Filter by content type")
	cmd.Flags().String("memory-type", "", "Filter by tier")
	cmd.Flags().StringP("importance", "i", "", "Filter by importance")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags (all must match)")
	cmd.Flags().String("after", "", "Created after (RFC 3339)")
	cmd.Flags().String("before", "", "Created before (RFC 3339)")
	cmd.Flags().IntP("limit", "l", 100, "Max results")
	cmd.Flags().Int("offset", 0, "Results to skip")
	cmd.Flags().String("sort", "last_accessed", "Sort field: created_at, last_accessed, access_count")
	cmd.Flags().String("order", "desc", "Sort order: asc or desc")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	q := storage.Query{Text: strings.Join(args, " ")}

	contentType, _ := cmd.Flags().GetString("content-type")
	memoryType, _ := cmd.Flags().GetString("memory-type")
	importance, _ := cmd.Flags().GetString("importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	after, _ := cmd.Flags().GetString("after")
	before, _ := cmd.Flags().GetString("before")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	q.Offset, _ = cmd.Flags().GetInt("offset")
	q.SortBy, _ = cmd.Flags().GetString("sort")
	q.SortOrder, _ = cmd.Flags().GetString("order")

	q.ContentType = types.ContentType(contentType)
	q.MemoryType = types.MemoryType(memoryType)
	q.Importance = types.Importance(importance)
	q.Tags = splitTags(tagsStr)

	if after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			exitErr("parse --after", err)
		}
		q.CreatedAfter = t
	}
	if before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			exitErr("parse --before", err)
		}
		q.CreatedBefore = t
	}

	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	items, err := mgr.Search(cmd.Context(), q)
	if err != nil {
		exitErr("search", err)
	}

	if len(items) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
}
