package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

// Transport moves memory items between the local store and a remote replica.
// Implementations must be safe for concurrent use; the syncer serializes
// rounds but shutdown may trigger a final push concurrently with Close.
type Transport interface {
	// Pull returns remote items modified after since.
	Pull(ctx context.Context, since time.Time) ([]*types.MemoryItem, error)

	// Push uploads local items to the remote replica.
	Push(ctx context.Context, items []*types.MemoryItem) error
}

// DirTransport syncs against a directory of one JSON file per item. It
// serves file-share style replicas and the export/import path; items are
// written as plaintext JSON, so the directory deserves the same protection
// as the key file.
type DirTransport struct {
	dir string
}

// NewDirTransport creates dir if needed and returns a transport over it.
func NewDirTransport(dir string) (*DirTransport, error) {
	if dir == "" {
		return nil, fmt.Errorf("cloudsync: transport directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cloudsync: create transport directory: %w", err)
	}
	return &DirTransport{dir: dir}, nil
}

// Pull reads every item file and returns those modified after since, ordered
// by id.
func (t *DirTransport) Pull(ctx context.Context, since time.Time) ([]*types.MemoryItem, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("cloudsync: read transport directory: %w", err)
	}

	var items []*types.MemoryItem
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(t.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("cloudsync: read %s: %w", entry.Name(), err)
		}

		var item types.MemoryItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("cloudsync: decode %s: %w", entry.Name(), err)
		}
		if item.ID == "" {
			return nil, fmt.Errorf("cloudsync: %s has no item id", entry.Name())
		}
		if item.LastAccessed.After(since) {
			items = append(items, &item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Push writes each item to <id>.json, replacing existing files.
func (t *DirTransport) Push(ctx context.Context, items []*types.MemoryItem) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item == nil || item.ID == "" {
			return fmt.Errorf("cloudsync: cannot push item without id")
		}

		data, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return fmt.Errorf("cloudsync: encode %s: %w", item.ID, err)
		}
		path := filepath.Join(t.dir, item.ID+".json")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("cloudsync: write %s: %w", path, err)
		}
	}
	return nil
}
