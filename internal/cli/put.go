package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("content-type", string(types.ContentText), "Content type: text, image, audio, video, document, code, structured_data")
	cmd.Flags().String("memory-type", string(types.MemoryMediumTerm), "Tier: short_term, medium_term, long_term, permanent")
	cmd.Flags().StringP("importance", "i", string(types.ImportanceMedium), "Importance: low, medium, high, critical")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("meta", "", "JSON metadata")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	contentType, _ := cmd.Flags().GetString("content-type")
	memoryType, _ := cmd.Flags().GetString("memory-type")
	importance, _ := cmd.Flags().GetString("importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	meta, _ := cmd.Flags().GetString("meta")

	// Content: positional arg first, then stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	item := &types.MemoryItem{
		Content:     strings.TrimSpace(content),
		ContentType: types.ContentType(contentType),
		MemoryType:  types.MemoryType(memoryType),
		Importance:  types.Importance(importance),
		Tags:        splitTags(tagsStr),
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			exitErr("parse metadata", err)
		}
	}

	cfg := loadConfig()
	obs := newObserver(cmd)
	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	stored, err := mgr.Store(cmd.Context(), item)
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.Marshal(stored)
	fmt.Println(string(b))
}

func splitTags(tagsStr string) []string {
	if tagsStr == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(tagsStr, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
